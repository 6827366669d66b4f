package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("record not found")

// ErrDuplicate is returned when a unique constraint rejects a write
var ErrDuplicate = errors.New("record already exists")

// All repository interfaces in one file
type (
	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
		Update(ctx context.Context, user *model.User) error
		UpdateTrial(ctx context.Context, user *model.User) error
		MarkLicenseActivated(ctx context.Context, userID uuid.UUID, licenseKey string) error
		CompleteOnboarding(ctx context.Context, userID uuid.UUID) error
		TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error
		ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]*model.User, error)
	}

	ClinicRepository interface {
		Create(ctx context.Context, clinic *model.Clinic) error
		Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error)
		Update(ctx context.Context, clinic *model.Clinic) error
		ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.Clinic, error)
		SlugExists(ctx context.Context, slug string) (bool, error)
	}

	RBACRepository interface {
		CreateRole(ctx context.Context, role *model.Role) error
		GetRole(ctx context.Context, id uuid.UUID) (*model.Role, error)
		GetRoleByName(ctx context.Context, name model.RoleName) (*model.Role, error)
		UpdateRole(ctx context.Context, role *model.Role) error
		DeleteRole(ctx context.Context, id uuid.UUID) error
		ListRoles(ctx context.Context) ([]*model.Role, error)
		// UpsertRole inserts or refreshes a role by name
		UpsertRole(ctx context.Context, role *model.Role) error

		UpsertPermission(ctx context.Context, perm *model.Permission) error
		ListPermissions(ctx context.Context) ([]*model.Permission, error)
		GetRolePermissions(ctx context.Context, roleID uuid.UUID) ([]model.PermissionSlug, error)
		// SetRolePermissions replaces the permission set of a role
		SetRolePermissions(ctx context.Context, roleID uuid.UUID, slugs []model.PermissionSlug) error

		// AssignRole upserts the single role a user holds in a clinic
		AssignRole(ctx context.Context, assignment *model.UserClinicRole) error
		RemoveRole(ctx context.Context, userID, clinicID uuid.UUID) error
		GetUserClinicRole(ctx context.Context, userID, clinicID uuid.UUID) (*model.Role, error)
		ListUserClinicRoles(ctx context.Context, userID uuid.UUID) ([]model.UserClinicRole, error)
		GetUserPermissionsInClinic(ctx context.Context, userID, clinicID uuid.UUID) ([]model.PermissionSlug, error)
		HasRoleInAnyClinic(ctx context.Context, userID uuid.UUID, role model.RoleName) (bool, error)
		ListUsersWithRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error)
	}

	LicenseRepository interface {
		// GetCurrent returns the newest license row
		GetCurrent(ctx context.Context) (*model.License, error)
		GetByKey(ctx context.Context, key string) (*model.License, error)
		Create(ctx context.Context, license *model.License) error
		Update(ctx context.Context, license *model.License) error
		// ExpireOverdue persists active → expired for licenses past expires_at
		ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
	}

	UsageRepository interface {
		Count(ctx context.Context, kind model.UsageKind, now time.Time) (int, error)
	}

	SettingRepository interface {
		Get(ctx context.Context, clinicID uuid.UUID, key string) (*model.Setting, error)
		Upsert(ctx context.Context, setting *model.Setting) error
		List(ctx context.Context, clinicID uuid.UUID) ([]*model.Setting, error)
		ListByGroup(ctx context.Context, clinicID uuid.UUID, group string) ([]*model.Setting, error)
		ListPublic(ctx context.Context, clinicID uuid.UUID) ([]*model.Setting, error)
		Delete(ctx context.Context, clinicID uuid.UUID, key string) error
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, clinicID, id uuid.UUID) (*model.Patient, error)
		List(ctx context.Context, clinicID uuid.UUID, filters *model.PatientFilters) ([]*model.Patient, int64, error)
	}

	AuditRepository interface {
		Create(ctx context.Context, log *model.AuditLog) error
		List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error)
		DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}

	// RegistrationRepository writes the records of a new account atomically
	RegistrationRepository interface {
		CreateAccount(ctx context.Context, user *model.User, clinic *model.Clinic, assignment *model.UserClinicRole) error
	}
)

// Repositories bundles one implementation of every repository
type Repositories struct {
	Users        UserRepository
	Clinics      ClinicRepository
	RBAC         RBACRepository
	Licenses     LicenseRepository
	Usage        UsageRepository
	Settings     SettingRepository
	Patients     PatientRepository
	Audit        AuditRepository
	Registration RegistrationRepository
}
