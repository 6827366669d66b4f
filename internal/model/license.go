package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type LicenseStatus string

const (
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusExpired   LicenseStatus = "expired"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusRevoked   LicenseStatus = "revoked"
)

type LicenseType string

const (
	LicenseTypeTrial        LicenseType = "trial"
	LicenseTypeBasic        LicenseType = "basic"
	LicenseTypeProfessional LicenseType = "professional"
	LicenseTypeEnterprise   LicenseType = "enterprise"
)

var licenseTransitions = map[LicenseStatus][]LicenseStatus{
	LicenseStatusActive:    {LicenseStatusExpired, LicenseStatusSuspended, LicenseStatusRevoked},
	LicenseStatusSuspended: {LicenseStatusActive, LicenseStatusRevoked},
	LicenseStatusExpired:   {LicenseStatusActive, LicenseStatusRevoked},
	LicenseStatusRevoked:   {},
}

// License gates feature access and usage quotas for the deployment.
// Max* values of 0 mean unlimited.
type License struct {
	Base
	LicenseKey              string         `db:"license_key" json:"-"`
	Type                    LicenseType    `db:"type" json:"type"`
	Status                  LicenseStatus  `db:"status" json:"status"`
	Features                pq.StringArray `db:"features" json:"features"`
	MaxUsers                int            `db:"max_users" json:"max_users"`
	MaxClinics              int            `db:"max_clinics" json:"max_clinics"`
	MaxPatients             int            `db:"max_patients" json:"max_patients"`
	MaxAppointmentsPerMonth int            `db:"max_appointments_per_month" json:"max_appointments_per_month"`
	ExpiresAt               *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	ActivatedAt             *time.Time     `db:"activated_at" json:"activated_at,omitempty"`
	ActivatedBy             *uuid.UUID     `db:"activated_by" json:"activated_by,omitempty"`
	LicenseeName            string         `db:"licensee_name" json:"licensee_name"`
	LicenseeEmail           string         `db:"licensee_email" json:"licensee_email"`
}

// EffectiveStatus folds the expiry date into the stored status
func (l *License) EffectiveStatus(now time.Time) LicenseStatus {
	if l.Status == LicenseStatusActive && l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return LicenseStatusExpired
	}
	return l.Status
}

// IsActive reports whether the license grants access at now
func (l *License) IsActive(now time.Time) bool {
	return l.EffectiveStatus(now) == LicenseStatusActive
}

// CanTransition reports whether the stored status may move to next
func (l *License) CanTransition(next LicenseStatus) bool {
	for _, s := range licenseTransitions[l.Status] {
		if s == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the license to next or reports an invalid transition
func (l *License) TransitionTo(next LicenseStatus) error {
	if !l.CanTransition(next) {
		return fmt.Errorf("license cannot move from %s to %s", l.Status, next)
	}
	l.Status = next
	return nil
}

// HasFeature reads the feature flag set
func (l *License) HasFeature(f Feature) bool {
	for _, s := range l.Features {
		if Feature(s) == f {
			return true
		}
	}
	return false
}

// Limit returns the ceiling configured for kind
func (l *License) Limit(kind UsageKind) int {
	switch kind {
	case UsageUsers:
		return l.MaxUsers
	case UsageClinics:
		return l.MaxClinics
	case UsagePatients:
		return l.MaxPatients
	case UsageAppointments:
		return l.MaxAppointmentsPerMonth
	}
	return 0
}

// DaysUntilExpiry returns whole days left, -1 when the license never expires
func (l *License) DaysUntilExpiry(now time.Time) int {
	if l.ExpiresAt == nil {
		return -1
	}
	d := l.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// Feature is a license-gated capability
type Feature string

const (
	FeatureAppointments     Feature = "appointments"
	FeaturePrescriptions    Feature = "prescriptions"
	FeatureBilling          Feature = "billing"
	FeatureReports          Feature = "reports"
	FeatureInventory        Feature = "inventory"
	FeatureSMSNotifications Feature = "sms_notifications"
	FeatureMultiClinic      Feature = "multi_clinic"
	FeatureAPIAccess        Feature = "api_access"
)

var knownFeatures = map[Feature]struct{}{
	FeatureAppointments:     {},
	FeaturePrescriptions:    {},
	FeatureBilling:          {},
	FeatureReports:          {},
	FeatureInventory:        {},
	FeatureSMSNotifications: {},
	FeatureMultiClinic:      {},
	FeatureAPIAccess:        {},
}

func (f Feature) Valid() bool {
	_, ok := knownFeatures[f]
	return ok
}

// UsageKind names a counted resource
type UsageKind string

const (
	UsageUsers        UsageKind = "users"
	UsageClinics      UsageKind = "clinics"
	UsagePatients     UsageKind = "patients"
	UsageAppointments UsageKind = "appointments"
)

func (k UsageKind) Valid() bool {
	switch k {
	case UsageUsers, UsageClinics, UsagePatients, UsageAppointments:
		return true
	}
	return false
}

// UsageLimits carries ceilings applied without a license
type UsageLimits struct {
	Users        int `mapstructure:"users" json:"users"`
	Clinics      int `mapstructure:"clinics" json:"clinics"`
	Patients     int `mapstructure:"patients" json:"patients"`
	Appointments int `mapstructure:"appointments" json:"appointments"`
}

// Limit returns the ceiling for kind
func (u UsageLimits) Limit(kind UsageKind) int {
	switch kind {
	case UsageUsers:
		return u.Users
	case UsageClinics:
		return u.Clinics
	case UsagePatients:
		return u.Patients
	case UsageAppointments:
		return u.Appointments
	}
	return 0
}

// UsageResult is the answer of a usage check. Limit 0 means unlimited.
type UsageResult struct {
	Kind    UsageKind `json:"kind"`
	Allowed bool      `json:"allowed"`
	Current int       `json:"current"`
	Limit   int       `json:"limit"`
}

// NewUsageResult compares current against limit
func NewUsageResult(kind UsageKind, current, limit int) UsageResult {
	return UsageResult{
		Kind:    kind,
		Current: current,
		Limit:   limit,
		Allowed: limit <= 0 || current < limit,
	}
}

// LicenseOverview is returned by the license status endpoint
type LicenseOverview struct {
	License         *License                  `json:"license,omitempty"`
	EffectiveStatus LicenseStatus             `json:"effective_status,omitempty"`
	DaysUntilExpiry int                       `json:"days_until_expiry"`
	Restricted      bool                      `json:"restricted"`
	Trial           TrialStatus               `json:"trial"`
	Usage           map[UsageKind]UsageResult `json:"usage"`
}

type ActivateLicenseRequest struct {
	LicenseKey string `json:"license_key" binding:"required,min=8,max=128"`
}
