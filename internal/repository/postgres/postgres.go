package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/repository"
)

// NewRepositories builds every postgres repository over one pool
func NewRepositories(db *sqlx.DB) *repository.Repositories {
	base := NewBaseRepository(db)
	return &repository.Repositories{
		Users:        NewUserRepository(base),
		Clinics:      NewClinicRepository(base),
		RBAC:         NewRBACRepository(base),
		Licenses:     NewLicenseRepository(base),
		Usage:        NewUsageRepository(base),
		Settings:     NewSettingRepository(base),
		Patients:     NewPatientRepository(base),
		Audit:        NewAuditRepository(base),
		Registration: NewRegistrationRepository(base),
	}
}
