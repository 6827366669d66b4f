package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

const roleColumns = `id, name, display_name, description, is_system_role, created_at, updated_at`

type rbacRepository struct {
	BaseRepository
}

func NewRBACRepository(base BaseRepository) repository.RBACRepository {
	return &rbacRepository{base}
}

func (r *rbacRepository) CreateRole(ctx context.Context, role *model.Role) error {
	query := `
		INSERT INTO roles (id, name, display_name, description, is_system_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	role.ID = uuid.New()
	role.CreatedAt = time.Now().UTC()
	role.UpdatedAt = role.CreatedAt

	_, err := r.db.ExecContext(ctx, query,
		role.ID,
		role.Name,
		role.DisplayName,
		role.Description,
		role.IsSystemRole,
		role.CreatedAt,
		role.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create role: %w", translate(err))
	}
	return nil
}

func (r *rbacRepository) GetRole(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	query := `SELECT ` + roleColumns + ` FROM roles WHERE id = $1`
	if err := r.db.GetContext(ctx, &role, query, id); err != nil {
		return nil, fmt.Errorf("failed to get role: %w", translate(err))
	}
	return &role, nil
}

func (r *rbacRepository) GetRoleByName(ctx context.Context, name model.RoleName) (*model.Role, error) {
	var role model.Role
	query := `SELECT ` + roleColumns + ` FROM roles WHERE name = $1`
	if err := r.db.GetContext(ctx, &role, query, name); err != nil {
		return nil, fmt.Errorf("failed to get role %s: %w", name, translate(err))
	}
	return &role, nil
}

func (r *rbacRepository) UpdateRole(ctx context.Context, role *model.Role) error {
	query := `
		UPDATE roles
		SET display_name = $1, description = $2, updated_at = $3
		WHERE id = $4
	`
	role.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx, query,
		role.DisplayName,
		role.Description,
		role.UpdatedAt,
		role.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	return expectRows(res)
}

func (r *rbacRepository) DeleteRole(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return expectRows(res)
}

func (r *rbacRepository) ListRoles(ctx context.Context) ([]*model.Role, error) {
	var roles []*model.Role
	query := `SELECT ` + roleColumns + ` FROM roles ORDER BY is_system_role DESC, name`
	if err := r.db.SelectContext(ctx, &roles, query); err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

func (r *rbacRepository) UpsertRole(ctx context.Context, role *model.Role) error {
	query := `
		INSERT INTO roles (id, name, display_name, description, is_system_role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (name) DO UPDATE
		SET display_name = EXCLUDED.display_name,
			description = EXCLUDED.description,
			is_system_role = EXCLUDED.is_system_role,
			updated_at = NOW()
		RETURNING ` + roleColumns
	if role.ID == uuid.Nil {
		role.ID = uuid.New()
	}
	err := r.db.GetContext(ctx, role, query,
		role.ID, role.Name, role.DisplayName, role.Description, role.IsSystemRole)
	if err != nil {
		return fmt.Errorf("failed to upsert role %s: %w", role.Name, err)
	}
	return nil
}

func (r *rbacRepository) UpsertPermission(ctx context.Context, perm *model.Permission) error {
	query := `
		INSERT INTO permissions (id, slug, module, action, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (slug) DO UPDATE
		SET module = EXCLUDED.module,
			action = EXCLUDED.action,
			description = EXCLUDED.description,
			updated_at = NOW()
		RETURNING id, slug, module, action, description, created_at, updated_at
	`
	if perm.ID == uuid.Nil {
		perm.ID = uuid.New()
	}
	err := r.db.GetContext(ctx, perm, query,
		perm.ID, perm.Slug, perm.Module, perm.Action, perm.Description)
	if err != nil {
		return fmt.Errorf("failed to upsert permission %s: %w", perm.Slug, err)
	}
	return nil
}

func (r *rbacRepository) ListPermissions(ctx context.Context) ([]*model.Permission, error) {
	var perms []*model.Permission
	query := `
		SELECT id, slug, module, action, description, created_at, updated_at
		FROM permissions
		ORDER BY module, action
	`
	if err := r.db.SelectContext(ctx, &perms, query); err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	return perms, nil
}

func (r *rbacRepository) GetRolePermissions(ctx context.Context, roleID uuid.UUID) ([]model.PermissionSlug, error) {
	query := `
		SELECT p.slug
		FROM permissions p
		JOIN role_permissions rp ON rp.permission_id = p.id
		WHERE rp.role_id = $1
		ORDER BY p.slug
	`
	var slugs []model.PermissionSlug
	if err := r.db.SelectContext(ctx, &slugs, query, roleID); err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	return slugs, nil
}

func (r *rbacRepository) SetRolePermissions(ctx context.Context, roleID uuid.UUID, slugs []model.PermissionSlug) error {
	names := make(pq.StringArray, len(slugs))
	for i, s := range slugs {
		names[i] = string(s)
	}
	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}
		if len(names) == 0 {
			return nil
		}
		query := `
			INSERT INTO role_permissions (role_id, permission_id)
			SELECT $1, id FROM permissions WHERE slug = ANY($2)
		`
		if _, err := tx.ExecContext(ctx, query, roleID, names); err != nil {
			return fmt.Errorf("failed to set role permissions: %w", err)
		}
		return nil
	})
}

func (r *rbacRepository) AssignRole(ctx context.Context, a *model.UserClinicRole) error {
	query := `
		INSERT INTO user_clinic_roles (user_id, clinic_id, role_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, clinic_id) DO UPDATE
		SET role_id = EXCLUDED.role_id
	`
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, err := r.db.ExecContext(ctx, query, a.UserID, a.ClinicID, a.RoleID, a.CreatedAt); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

func (r *rbacRepository) RemoveRole(ctx context.Context, userID, clinicID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM user_clinic_roles WHERE user_id = $1 AND clinic_id = $2`, userID, clinicID)
	if err != nil {
		return fmt.Errorf("failed to remove role: %w", err)
	}
	return expectRows(res)
}

func (r *rbacRepository) GetUserClinicRole(ctx context.Context, userID, clinicID uuid.UUID) (*model.Role, error) {
	query := `
		SELECT r.id, r.name, r.display_name, r.description, r.is_system_role, r.created_at, r.updated_at
		FROM roles r
		JOIN user_clinic_roles ucr ON ucr.role_id = r.id
		WHERE ucr.user_id = $1 AND ucr.clinic_id = $2
	`
	var role model.Role
	if err := r.db.GetContext(ctx, &role, query, userID, clinicID); err != nil {
		return nil, fmt.Errorf("failed to get clinic role: %w", translate(err))
	}
	return &role, nil
}

func (r *rbacRepository) ListUserClinicRoles(ctx context.Context, userID uuid.UUID) ([]model.UserClinicRole, error) {
	query := `
		SELECT ucr.user_id, ucr.clinic_id, ucr.role_id, r.name AS role_name, ucr.created_at
		FROM user_clinic_roles ucr
		JOIN roles r ON r.id = ucr.role_id
		WHERE ucr.user_id = $1
		ORDER BY ucr.created_at, ucr.clinic_id
	`
	var rows []model.UserClinicRole
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list user roles: %w", err)
	}
	return rows, nil
}

func (r *rbacRepository) GetUserPermissionsInClinic(ctx context.Context, userID, clinicID uuid.UUID) ([]model.PermissionSlug, error) {
	query := `
		SELECT DISTINCT p.slug
		FROM user_clinic_roles ucr
		JOIN role_permissions rp ON rp.role_id = ucr.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ucr.user_id = $1 AND ucr.clinic_id = $2
	`
	var slugs []model.PermissionSlug
	if err := r.db.SelectContext(ctx, &slugs, query, userID, clinicID); err != nil {
		return nil, fmt.Errorf("failed to get user permissions: %w", err)
	}
	return slugs, nil
}

func (r *rbacRepository) HasRoleInAnyClinic(ctx context.Context, userID uuid.UUID, role model.RoleName) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1
			FROM user_clinic_roles ucr
			JOIN roles r ON r.id = ucr.role_id
			WHERE ucr.user_id = $1 AND r.name = $2
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, role); err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return exists, nil
}

func (r *rbacRepository) ListUsersWithRole(ctx context.Context, roleID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.SelectContext(ctx, &ids,
		`SELECT DISTINCT user_id FROM user_clinic_roles WHERE role_id = $1`, roleID); err != nil {
		return nil, fmt.Errorf("failed to list role holders: %w", err)
	}
	return ids, nil
}
