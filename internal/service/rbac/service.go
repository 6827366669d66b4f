package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/appcache"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
)

var (
	ErrSystemRoleImmutable = errors.New("system roles cannot be modified or deleted")
	ErrRoleNotFound        = errors.New("role not found")
	ErrInvalidRole         = errors.New("invalid role")
)

type Service struct {
	repo    repository.RBACRepository
	cache   *appcache.Service
	auditor *audit.Service
}

func NewService(repo repository.RBACRepository, cache *appcache.Service, auditor *audit.Service) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		auditor: auditor,
	}
}

// IsSuperAdmin reports whether the user carries the global flag or holds
// the superadmin role in any clinic
func (s *Service) IsSuperAdmin(ctx context.Context, user *model.User) bool {
	if user == nil {
		return false
	}
	if user.IsSuperAdmin {
		return true
	}
	if is, ok := s.cache.GetCachedSuperAdmin(ctx, user.ID); ok {
		return is
	}
	is, err := s.repo.HasRoleInAnyClinic(ctx, user.ID, model.RoleSuperAdmin)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("superadmin lookup failed")
		return false
	}
	s.cache.CacheSuperAdmin(ctx, user.ID, is)
	return is
}

// permissions resolves the user's permission set in a clinic. Lookup
// failures resolve to the empty set.
func (s *Service) permissions(ctx context.Context, userID, clinicID uuid.UUID) model.PermissionSet {
	if perms, ok := s.cache.GetCachedUserPermissions(ctx, userID, clinicID); ok {
		return model.NewPermissionSet(perms...)
	}
	perms, err := s.repo.GetUserPermissionsInClinic(ctx, userID, clinicID)
	if err != nil {
		log.Error().
			Err(err).
			Str("user_id", userID.String()).
			Str("clinic_id", clinicID.String()).
			Msg("permission lookup failed")
		return model.PermissionSet{}
	}
	s.cache.CacheUserPermissions(ctx, userID, clinicID, perms)
	return model.NewPermissionSet(perms...)
}

func (s *Service) HasPermissionInClinic(ctx context.Context, user *model.User, perm model.PermissionSlug, clinicID uuid.UUID) bool {
	if user == nil {
		return false
	}
	if s.IsSuperAdmin(ctx, user) {
		return true
	}
	if clinicID == uuid.Nil {
		return false
	}
	return s.permissions(ctx, user.ID, clinicID).Has(perm)
}

func (s *Service) HasAnyPermissionInClinic(ctx context.Context, user *model.User, perms []model.PermissionSlug, clinicID uuid.UUID) bool {
	if user == nil {
		return false
	}
	if s.IsSuperAdmin(ctx, user) {
		return true
	}
	if clinicID == uuid.Nil {
		return false
	}
	set := s.permissions(ctx, user.ID, clinicID)
	for _, p := range perms {
		if set.Has(p) {
			return true
		}
	}
	return false
}

func (s *Service) HasAllPermissionsInClinic(ctx context.Context, user *model.User, perms []model.PermissionSlug, clinicID uuid.UUID) bool {
	if user == nil {
		return false
	}
	if s.IsSuperAdmin(ctx, user) {
		return true
	}
	if clinicID == uuid.Nil {
		return false
	}
	set := s.permissions(ctx, user.ID, clinicID)
	for _, p := range perms {
		if !set.Has(p) {
			return false
		}
	}
	return true
}

// RoleInClinic returns the role the user holds in the clinic
func (s *Service) RoleInClinic(ctx context.Context, userID, clinicID uuid.UUID) (*model.Role, bool) {
	if userID == uuid.Nil || clinicID == uuid.Nil {
		return nil, false
	}
	if role, ok := s.cache.GetCachedUserRole(ctx, userID, clinicID); ok {
		return role, role != nil
	}
	role, err := s.repo.GetUserClinicRole(ctx, userID, clinicID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		s.cache.CacheUserRole(ctx, userID, clinicID, nil)
		return nil, false
	case err != nil:
		log.Error().Err(err).Str("user_id", userID.String()).Msg("clinic role lookup failed")
		return nil, false
	}
	s.cache.CacheUserRole(ctx, userID, clinicID, role)
	return role, true
}

// HasAnyRoleInClinic reports whether the user holds a recognized role in the clinic
func (s *Service) HasAnyRoleInClinic(ctx context.Context, userID, clinicID uuid.UUID) bool {
	_, ok := s.RoleInClinic(ctx, userID, clinicID)
	return ok
}

// GetPrimaryRole picks the highest ranked role across the user's clinics.
// Equal ranks resolve to the earliest assignment, then the lowest clinic id.
func (s *Service) GetPrimaryRole(ctx context.Context, user *model.User) (*model.Role, bool) {
	if user == nil {
		return nil, false
	}
	assignments, err := s.repo.ListUserClinicRoles(ctx, user.ID)
	if err != nil {
		log.Error().Err(err).Str("user_id", user.ID.String()).Msg("role listing failed")
		return nil, false
	}
	best := PrimaryAssignment(assignments)
	if best == nil {
		if user.IsSuperAdmin {
			return &model.Role{Name: model.RoleSuperAdmin, DisplayName: "Super Admin", IsSystemRole: true}, true
		}
		return nil, false
	}
	role, err := s.repo.GetRole(ctx, best.RoleID)
	if err != nil {
		log.Error().Err(err).Str("role_id", best.RoleID.String()).Msg("role lookup failed")
		return nil, false
	}
	return role, true
}

// PrimaryAssignment orders assignments by role rank, then created_at, then
// clinic id, and returns the first
func PrimaryAssignment(assignments []model.UserClinicRole) *model.UserClinicRole {
	if len(assignments) == 0 {
		return nil
	}
	sorted := append([]model.UserClinicRole(nil), assignments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if ra, rb := a.RoleName.Rank(), b.RoleName.Rank(); ra != rb {
			return ra > rb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ClinicID.String() < b.ClinicID.String()
	})
	return &sorted[0]
}

func (s *Service) hasRoleIn(ctx context.Context, user *model.User, clinicID uuid.UUID, allowed []model.RoleName) bool {
	if s.IsSuperAdmin(ctx, user) {
		return true
	}
	if user == nil {
		return false
	}
	role, ok := s.RoleInClinic(ctx, user.ID, clinicID)
	if !ok {
		return false
	}
	for _, r := range allowed {
		if role.Name == r {
			return true
		}
	}
	return false
}

func (s *Service) CanAccessClinicalNotes(ctx context.Context, user *model.User, clinicID uuid.UUID) bool {
	return s.hasRoleIn(ctx, user, clinicID, model.ClinicalNoteRoles)
}

func (s *Service) CanAccessPatientData(ctx context.Context, user *model.User, clinicID uuid.UUID) bool {
	return s.hasRoleIn(ctx, user, clinicID, model.PatientDataRoles)
}

// Role administration

func (s *Service) CreateRole(ctx context.Context, role *model.Role, perms []model.PermissionSlug) error {
	if err := validateRole(role, perms); err != nil {
		return err
	}
	if role.Name.IsSystem() {
		return fmt.Errorf("%w: %s is reserved", ErrInvalidRole, role.Name)
	}
	role.IsSystemRole = false

	if err := s.repo.CreateRole(ctx, role); err != nil {
		return fmt.Errorf("failed to create role: %w", err)
	}
	if len(perms) > 0 {
		if err := s.repo.SetRolePermissions(ctx, role.ID, perms); err != nil {
			return fmt.Errorf("failed to set role permissions: %w", err)
		}
	}

	s.auditor.Log(ctx, model.AuditActionCreate, model.AuditEntityRole, role.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"role": role, "permissions": perms},
	})
	return nil
}

func (s *Service) GetRole(ctx context.Context, id uuid.UUID) (*model.Role, []model.PermissionSlug, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, ErrRoleNotFound
		}
		return nil, nil, fmt.Errorf("failed to get role: %w", err)
	}
	perms, err := s.repo.GetRolePermissions(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	return role, perms, nil
}

func (s *Service) loadMutable(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if role.IsSystemRole {
		return nil, ErrSystemRoleImmutable
	}
	return role, nil
}

func (s *Service) UpdateRole(ctx context.Context, id uuid.UUID, displayName, description string) (*model.Role, error) {
	role, err := s.loadMutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(displayName) != "" {
		role.DisplayName = displayName
	}
	role.Description = description

	if err := s.repo.UpdateRole(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}

	s.auditor.Log(ctx, model.AuditActionUpdate, model.AuditEntityRole, role.ID, &audit.LogOptions{
		Changes: role,
	})
	return role, nil
}

func (s *Service) DeleteRole(ctx context.Context, id uuid.UUID) error {
	role, err := s.loadMutable(ctx, id)
	if err != nil {
		return err
	}
	holders, err := s.repo.ListUsersWithRole(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to list role holders: %w", err)
	}
	if len(holders) > 0 {
		return fmt.Errorf("%w: role %s is assigned to %d users", ErrInvalidRole, role.Name, len(holders))
	}

	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}

	s.auditor.Log(ctx, model.AuditActionDelete, model.AuditEntityRole, id, nil)
	return nil
}

func (s *Service) ListRoles(ctx context.Context) ([]*model.Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

func (s *Service) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// SyncRolePermissions replaces the permissions of a custom role and drops
// the cached permission sets of everyone holding it
func (s *Service) SyncRolePermissions(ctx context.Context, roleID uuid.UUID, perms []model.PermissionSlug) error {
	role, err := s.loadMutable(ctx, roleID)
	if err != nil {
		return err
	}
	if err := validateRole(role, perms); err != nil {
		return err
	}
	if err := s.repo.SetRolePermissions(ctx, roleID, perms); err != nil {
		return fmt.Errorf("failed to set role permissions: %w", err)
	}
	s.invalidateHolders(ctx, roleID)

	s.auditor.Log(ctx, model.AuditActionUpdate, model.AuditEntityRole, roleID, &audit.LogOptions{
		Changes: map[string]interface{}{"permissions": perms},
	})
	return nil
}

func (s *Service) invalidateHolders(ctx context.Context, roleID uuid.UUID) {
	holders, err := s.repo.ListUsersWithRole(ctx, roleID)
	if err != nil {
		log.Warn().Err(err).Str("role_id", roleID.String()).Msg("could not list role holders for invalidation")
		return
	}
	for _, userID := range holders {
		s.cache.InvalidateUserCache(ctx, userID)
	}
}

// AssignRoleInClinic sets the single role a user holds in a clinic
func (s *Service) AssignRoleInClinic(ctx context.Context, userID, clinicID, roleID uuid.UUID) error {
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("failed to get role: %w", err)
	}

	assignment := &model.UserClinicRole{UserID: userID, ClinicID: clinicID, RoleID: role.ID, RoleName: role.Name}
	if err := s.repo.AssignRole(ctx, assignment); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	s.cache.InvalidateUserCache(ctx, userID)

	s.auditor.Log(ctx, model.AuditActionAssignRole, model.AuditEntityUser, userID, &audit.LogOptions{
		ClinicID: &clinicID,
		Changes:  map[string]interface{}{"role_id": role.ID, "role": role.Name},
	})
	return nil
}

func (s *Service) RemoveRoleFromClinic(ctx context.Context, userID, clinicID uuid.UUID) error {
	if err := s.repo.RemoveRole(ctx, userID, clinicID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("failed to remove role: %w", err)
	}
	s.cache.InvalidateUserCache(ctx, userID)

	s.auditor.Log(ctx, model.AuditActionRemoveRole, model.AuditEntityUser, userID, &audit.LogOptions{
		ClinicID: &clinicID,
	})
	return nil
}

// ListUserRoles returns the user's assignments across clinics
func (s *Service) ListUserRoles(ctx context.Context, userID uuid.UUID) ([]model.UserClinicRole, error) {
	return s.repo.ListUserClinicRoles(ctx, userID)
}

// SeedSystemRoles upserts the permission catalog and the system roles with
// their default permission sets. Safe to run on every start.
func (s *Service) SeedSystemRoles(ctx context.Context) error {
	if err := model.ValidateCatalog(); err != nil {
		return err
	}
	for _, slug := range model.AllPermissions {
		perm := &model.Permission{
			Slug:        slug,
			Module:      slug.Module(),
			Action:      slug.Action(),
			Description: fmt.Sprintf("%s %s", slug.Action(), strings.ReplaceAll(slug.Module(), "_", " ")),
		}
		if err := s.repo.UpsertPermission(ctx, perm); err != nil {
			return err
		}
	}
	for _, name := range model.SystemRoles {
		role := &model.Role{
			Name:         name,
			DisplayName:  displayName(name),
			Description:  fmt.Sprintf("Built-in %s role", name),
			IsSystemRole: true,
		}
		if err := s.repo.UpsertRole(ctx, role); err != nil {
			return err
		}
		if err := s.repo.SetRolePermissions(ctx, role.ID, model.DefaultRolePermissions[name]); err != nil {
			return err
		}
		s.invalidateHolders(ctx, role.ID)
	}
	log.Info().Int("roles", len(model.SystemRoles)).Int("permissions", len(model.AllPermissions)).Msg("rbac catalog seeded")
	return nil
}

func displayName(name model.RoleName) string {
	switch name {
	case model.RoleSuperAdmin:
		return "Super Admin"
	case model.RoleMedRep:
		return "Medical Representative"
	}
	s := string(name)
	return strings.ToUpper(s[:1]) + s[1:]
}

func validateRole(role *model.Role, perms []model.PermissionSlug) error {
	name := strings.TrimSpace(string(role.Name))
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRole)
	}
	if strings.ContainsAny(name, " \t") {
		return fmt.Errorf("%w: name must not contain spaces", ErrInvalidRole)
	}
	for _, p := range perms {
		if !p.Valid() {
			return fmt.Errorf("%w: unknown permission %q", ErrInvalidRole, p)
		}
	}
	return nil
}
