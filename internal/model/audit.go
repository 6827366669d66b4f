package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	UserID     *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	ClinicID   *uuid.UUID      `json:"clinic_id,omitempty" db:"clinic_id"`
	Action     string          `json:"action" db:"action"`
	EntityType string          `json:"entity_type" db:"entity_type"`
	EntityID   uuid.UUID       `json:"entity_id" db:"entity_id"`
	Changes    json.RawMessage `json:"changes,omitempty" db:"changes"`
	IPAddress  string          `json:"ip_address" db:"ip_address"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

const (
	AuditActionCreate     = "create"
	AuditActionUpdate     = "update"
	AuditActionDelete     = "delete"
	AuditActionAssignRole = "assign_role"
	AuditActionRemoveRole = "remove_role"
	AuditActionActivate   = "activate"
	AuditActionTransition = "transition"
	AuditActionRegister   = "register"
	AuditActionRead       = "read"
	AuditActionStartTrial = "start_trial"
	AuditActionClearCache = "clear_cache"

	AuditEntityUser    = "user"
	AuditEntityRole    = "role"
	AuditEntityLicense = "license"
	AuditEntitySetting = "setting"
	AuditEntityClinic  = "clinic"
	AuditEntityPatient = "patient"
	AuditEntityCache   = "cache"
)

type AuditFilters struct {
	Pagination
	UserID     *uuid.UUID `form:"-"`
	ClinicID   *uuid.UUID `form:"-"`
	EntityType string     `form:"entity_type"`
	Action     string     `form:"action"`
}
