package model

import (
	"fmt"
	"strings"
)

// RoleName identifies a role. System roles use the constants below.
type RoleName string

const (
	RoleSuperAdmin   RoleName = "superadmin"
	RoleAdmin        RoleName = "admin"
	RoleDoctor       RoleName = "doctor"
	RoleReceptionist RoleName = "receptionist"
	RoleMedRep       RoleName = "medrep"
	RolePatient      RoleName = "patient"
)

// SystemRoles lists the built-in roles from highest to lowest privilege
var SystemRoles = []RoleName{
	RoleSuperAdmin,
	RoleAdmin,
	RoleDoctor,
	RoleReceptionist,
	RoleMedRep,
	RolePatient,
}

var roleRank = map[RoleName]int{
	RoleSuperAdmin:   6,
	RoleAdmin:        5,
	RoleDoctor:       4,
	RoleReceptionist: 3,
	RoleMedRep:       2,
	RolePatient:      1,
}

// Rank orders roles by privilege. Custom roles rank 0.
func (r RoleName) Rank() int {
	return roleRank[r]
}

// IsSystem reports whether r is one of the built-in roles
func (r RoleName) IsSystem() bool {
	_, ok := roleRank[r]
	return ok
}

// Role is a named bundle of permissions
type Role struct {
	Base
	Name         RoleName `db:"name" json:"name"`
	DisplayName  string   `db:"display_name" json:"display_name"`
	Description  string   `db:"description" json:"description"`
	IsSystemRole bool     `db:"is_system_role" json:"is_system_role"`
}

// Permission is an atomic capability identified by its slug
type Permission struct {
	Base
	Slug        PermissionSlug `db:"slug" json:"slug"`
	Module      string         `db:"module" json:"module"`
	Action      string         `db:"action" json:"action"`
	Description string         `db:"description" json:"description"`
}

// PermissionSlug is a "module.action" capability identifier drawn from a closed set
type PermissionSlug string

const (
	PermPatientCreate PermissionSlug = "patient.create"
	PermPatientRead   PermissionSlug = "patient.read"
	PermPatientUpdate PermissionSlug = "patient.update"
	PermPatientDelete PermissionSlug = "patient.delete"

	PermAppointmentCreate PermissionSlug = "appointment.create"
	PermAppointmentRead   PermissionSlug = "appointment.read"
	PermAppointmentUpdate PermissionSlug = "appointment.update"
	PermAppointmentDelete PermissionSlug = "appointment.delete"

	PermPrescriptionCreate PermissionSlug = "prescription.create"
	PermPrescriptionRead   PermissionSlug = "prescription.read"
	PermPrescriptionUpdate PermissionSlug = "prescription.update"
	PermPrescriptionDelete PermissionSlug = "prescription.delete"

	PermClinicalNoteCreate PermissionSlug = "clinical_note.create"
	PermClinicalNoteRead   PermissionSlug = "clinical_note.read"
	PermClinicalNoteUpdate PermissionSlug = "clinical_note.update"

	PermBillingCreate PermissionSlug = "billing.create"
	PermBillingRead   PermissionSlug = "billing.read"
	PermBillingUpdate PermissionSlug = "billing.update"
	PermBillingDelete PermissionSlug = "billing.delete"

	PermMedicineCreate PermissionSlug = "medicine.create"
	PermMedicineRead   PermissionSlug = "medicine.read"
	PermMedicineUpdate PermissionSlug = "medicine.update"

	PermStaffCreate PermissionSlug = "staff.create"
	PermStaffRead   PermissionSlug = "staff.read"
	PermStaffUpdate PermissionSlug = "staff.update"
	PermStaffDelete PermissionSlug = "staff.delete"

	PermRoleRead   PermissionSlug = "role.read"
	PermRoleManage PermissionSlug = "role.manage"

	PermSettingsRead   PermissionSlug = "settings.read"
	PermSettingsUpdate PermissionSlug = "settings.update"

	PermReportRead PermissionSlug = "report.read"

	PermClinicRead   PermissionSlug = "clinic.read"
	PermClinicUpdate PermissionSlug = "clinic.update"

	PermLicenseRead   PermissionSlug = "license.read"
	PermLicenseManage PermissionSlug = "license.manage"
)

// AllPermissions is the closed permission set
var AllPermissions = []PermissionSlug{
	PermPatientCreate, PermPatientRead, PermPatientUpdate, PermPatientDelete,
	PermAppointmentCreate, PermAppointmentRead, PermAppointmentUpdate, PermAppointmentDelete,
	PermPrescriptionCreate, PermPrescriptionRead, PermPrescriptionUpdate, PermPrescriptionDelete,
	PermClinicalNoteCreate, PermClinicalNoteRead, PermClinicalNoteUpdate,
	PermBillingCreate, PermBillingRead, PermBillingUpdate, PermBillingDelete,
	PermMedicineCreate, PermMedicineRead, PermMedicineUpdate,
	PermStaffCreate, PermStaffRead, PermStaffUpdate, PermStaffDelete,
	PermRoleRead, PermRoleManage,
	PermSettingsRead, PermSettingsUpdate,
	PermReportRead,
	PermClinicRead, PermClinicUpdate,
	PermLicenseRead, PermLicenseManage,
}

var knownPermissions = func() map[PermissionSlug]struct{} {
	m := make(map[PermissionSlug]struct{}, len(AllPermissions))
	for _, p := range AllPermissions {
		m[p] = struct{}{}
	}
	return m
}()

// Valid reports whether p belongs to the closed set
func (p PermissionSlug) Valid() bool {
	_, ok := knownPermissions[p]
	return ok
}

// Module returns the part before the dot
func (p PermissionSlug) Module() string {
	module, _, _ := strings.Cut(string(p), ".")
	return module
}

// Action returns the part after the dot
func (p PermissionSlug) Action() string {
	_, action, _ := strings.Cut(string(p), ".")
	return action
}

// ParsePermission validates a slug coming from outside the program
func ParsePermission(s string) (PermissionSlug, error) {
	p := PermissionSlug(strings.TrimSpace(s))
	if !p.Valid() {
		return "", fmt.Errorf("unknown permission %q", s)
	}
	return p, nil
}

// DefaultRolePermissions is the fixed role to permission table seeded for
// system roles. superadmin is granted everything.
var DefaultRolePermissions = map[RoleName][]PermissionSlug{
	RoleSuperAdmin: AllPermissions,
	RoleAdmin: {
		PermPatientCreate, PermPatientRead, PermPatientUpdate, PermPatientDelete,
		PermAppointmentCreate, PermAppointmentRead, PermAppointmentUpdate, PermAppointmentDelete,
		PermPrescriptionCreate, PermPrescriptionRead, PermPrescriptionUpdate, PermPrescriptionDelete,
		PermClinicalNoteCreate, PermClinicalNoteRead, PermClinicalNoteUpdate,
		PermBillingCreate, PermBillingRead, PermBillingUpdate, PermBillingDelete,
		PermMedicineCreate, PermMedicineRead, PermMedicineUpdate,
		PermStaffCreate, PermStaffRead, PermStaffUpdate, PermStaffDelete,
		PermRoleRead, PermRoleManage,
		PermSettingsRead, PermSettingsUpdate,
		PermReportRead,
		PermClinicRead, PermClinicUpdate,
		PermLicenseRead,
	},
	RoleDoctor: {
		PermPatientCreate, PermPatientRead, PermPatientUpdate,
		PermAppointmentCreate, PermAppointmentRead, PermAppointmentUpdate,
		PermPrescriptionCreate, PermPrescriptionRead, PermPrescriptionUpdate, PermPrescriptionDelete,
		PermClinicalNoteCreate, PermClinicalNoteRead, PermClinicalNoteUpdate,
		PermBillingRead,
		PermMedicineRead,
		PermSettingsRead,
		PermReportRead,
		PermClinicRead,
	},
	RoleReceptionist: {
		PermPatientCreate, PermPatientRead, PermPatientUpdate,
		PermAppointmentCreate, PermAppointmentRead, PermAppointmentUpdate, PermAppointmentDelete,
		PermBillingCreate, PermBillingRead, PermBillingUpdate,
		PermSettingsRead,
		PermClinicRead,
	},
	RoleMedRep: {
		PermAppointmentCreate, PermAppointmentRead,
		PermMedicineCreate, PermMedicineRead, PermMedicineUpdate,
	},
	RolePatient: {
		PermPatientRead,
		PermAppointmentCreate, PermAppointmentRead,
		PermPrescriptionRead,
		PermBillingRead,
	},
}

// ClinicalNoteRoles may read clinical notes
var ClinicalNoteRoles = []RoleName{RoleSuperAdmin, RoleAdmin, RoleDoctor}

// PatientDataRoles may read patient data
var PatientDataRoles = []RoleName{RoleSuperAdmin, RoleAdmin, RoleDoctor, RoleReceptionist, RolePatient}

// ValidateCatalog checks the role table against the closed permission set.
// It runs at startup so a typo stops the boot instead of failing a request.
func ValidateCatalog() error {
	for _, role := range SystemRoles {
		perms, ok := DefaultRolePermissions[role]
		if !ok {
			return fmt.Errorf("system role %q has no permission table", role)
		}
		seen := make(map[PermissionSlug]struct{}, len(perms))
		for _, p := range perms {
			if !p.Valid() {
				return fmt.Errorf("role %q references unknown permission %q", role, p)
			}
			if _, dup := seen[p]; dup {
				return fmt.Errorf("role %q lists permission %q twice", role, p)
			}
			seen[p] = struct{}{}
		}
	}
	for role := range DefaultRolePermissions {
		if !role.IsSystem() {
			return fmt.Errorf("permission table names unknown role %q", role)
		}
	}
	for _, p := range AllPermissions {
		if strings.Count(string(p), ".") != 1 {
			return fmt.Errorf("permission %q is not in module.action form", p)
		}
	}
	return nil
}

// PermissionSet is a lookup set of slugs
type PermissionSet map[PermissionSlug]struct{}

// NewPermissionSet builds a set from slugs
func NewPermissionSet(slugs ...PermissionSlug) PermissionSet {
	s := make(PermissionSet, len(slugs))
	for _, p := range slugs {
		s[p] = struct{}{}
	}
	return s
}

func (s PermissionSet) Has(p PermissionSlug) bool {
	_, ok := s[p]
	return ok
}

// Slugs returns the members as a slice
func (s PermissionSet) Slugs() []PermissionSlug {
	out := make([]PermissionSlug, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}
