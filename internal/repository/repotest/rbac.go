package repotest

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type rbacRepo struct{ db *DB }

func (r rbacRepo) CreateRole(_ context.Context, role *model.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.Roles {
		if existing.Name == role.Name {
			return repository.ErrDuplicate
		}
	}
	role.ID = uuid.New()
	cp := *role
	r.db.Roles[role.ID] = &cp
	return nil
}

func (r rbacRepo) GetRole(_ context.Context, id uuid.UUID) (*model.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return nil, r.db.Err
	}
	role, ok := r.db.Roles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *role
	return &cp, nil
}

func (r rbacRepo) GetRoleByName(_ context.Context, name model.RoleName) (*model.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return nil, r.db.Err
	}
	for _, role := range r.db.Roles {
		if role.Name == name {
			cp := *role
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r rbacRepo) UpdateRole(_ context.Context, role *model.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	stored, ok := r.db.Roles[role.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.DisplayName, stored.Description = role.DisplayName, role.Description
	return nil
}

func (r rbacRepo) DeleteRole(_ context.Context, id uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if _, ok := r.db.Roles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.Roles, id)
	delete(r.db.RolePerms, id)
	return nil
}

func (r rbacRepo) ListRoles(_ context.Context) ([]*model.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*model.Role, 0, len(r.db.Roles))
	for _, role := range r.db.Roles {
		cp := *role
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r rbacRepo) UpsertRole(_ context.Context, role *model.Role) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.Roles {
		if existing.Name == role.Name {
			existing.DisplayName, existing.Description, existing.IsSystemRole = role.DisplayName, role.Description, role.IsSystemRole
			*role = *existing
			return nil
		}
	}
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	cp := *role
	r.db.Roles[role.ID] = &cp
	return nil
}

func (r rbacRepo) UpsertPermission(_ context.Context, p *model.Permission) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if existing, ok := r.db.Permissions[p.Slug]; ok {
		p.ID = existing.ID
	} else if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.db.Permissions[p.Slug] = &cp
	return nil
}

func (r rbacRepo) ListPermissions(_ context.Context) ([]*model.Permission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]*model.Permission, 0, len(r.db.Permissions))
	for _, p := range r.db.Permissions {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out, nil
}

func (r rbacRepo) GetRolePermissions(_ context.Context, roleID uuid.UUID) ([]model.PermissionSlug, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return append([]model.PermissionSlug(nil), r.db.RolePerms[roleID]...), nil
}

func (r rbacRepo) SetRolePermissions(_ context.Context, roleID uuid.UUID, slugs []model.PermissionSlug) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.RolePerms[roleID] = append([]model.PermissionSlug(nil), slugs...)
	return nil
}

func (r rbacRepo) AssignRole(_ context.Context, a *model.UserClinicRole) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return r.db.Err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if role, ok := r.db.Roles[a.RoleID]; ok {
		a.RoleName = role.Name
	}
	r.db.upsertAssignment(*a)
	return nil
}

func (r rbacRepo) RemoveRole(_ context.Context, userID, clinicID uuid.UUID) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i, a := range r.db.Assignments {
		if a.UserID == userID && a.ClinicID == clinicID {
			r.db.Assignments = append(r.db.Assignments[:i], r.db.Assignments[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r rbacRepo) GetUserClinicRole(_ context.Context, userID, clinicID uuid.UUID) (*model.Role, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return nil, r.db.Err
	}
	for _, a := range r.db.Assignments {
		if a.UserID == userID && a.ClinicID == clinicID {
			if role, ok := r.db.Roles[a.RoleID]; ok {
				cp := *role
				return &cp, nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

func (r rbacRepo) ListUserClinicRoles(_ context.Context, userID uuid.UUID) ([]model.UserClinicRole, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return nil, r.db.Err
	}
	var out []model.UserClinicRole
	for _, a := range r.db.Assignments {
		if a.UserID == userID {
			if role, ok := r.db.Roles[a.RoleID]; ok {
				a.RoleName = role.Name
			}
			out = append(out, a)
		}
	}
	return out, nil
}

func (r rbacRepo) GetUserPermissionsInClinic(_ context.Context, userID, clinicID uuid.UUID) ([]model.PermissionSlug, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return nil, r.db.Err
	}
	for _, a := range r.db.Assignments {
		if a.UserID == userID && a.ClinicID == clinicID {
			return append([]model.PermissionSlug(nil), r.db.RolePerms[a.RoleID]...), nil
		}
	}
	return nil, nil
}

func (r rbacRepo) HasRoleInAnyClinic(_ context.Context, userID uuid.UUID, name model.RoleName) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.Err != nil {
		return false, r.db.Err
	}
	for _, a := range r.db.Assignments {
		if a.UserID != userID {
			continue
		}
		if role, ok := r.db.Roles[a.RoleID]; ok && role.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r rbacRepo) ListUsersWithRole(_ context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	seen := map[uuid.UUID]struct{}{}
	var out []uuid.UUID
	for _, a := range r.db.Assignments {
		if a.RoleID != roleID {
			continue
		}
		if _, ok := seen[a.UserID]; !ok {
			seen[a.UserID] = struct{}{}
			out = append(out, a.UserID)
		}
	}
	return out, nil
}
