package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

const settingColumns = `id, clinic_id, key, value, type, group_name, is_public, created_at, updated_at`

type settingRepository struct {
	BaseRepository
}

func NewSettingRepository(base BaseRepository) repository.SettingRepository {
	return &settingRepository{base}
}

func (r *settingRepository) Get(ctx context.Context, clinicID uuid.UUID, key string) (*model.Setting, error) {
	var s model.Setting
	query := `SELECT ` + settingColumns + ` FROM settings WHERE clinic_id = $1 AND key = $2`
	if err := r.db.GetContext(ctx, &s, query, clinicID, key); err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, translate(err))
	}
	return &s, nil
}

func (r *settingRepository) Upsert(ctx context.Context, s *model.Setting) error {
	query := `
		INSERT INTO settings (id, clinic_id, key, value, type, group_name, is_public, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (clinic_id, key) DO UPDATE
		SET value = EXCLUDED.value,
			type = EXCLUDED.type,
			group_name = EXCLUDED.group_name,
			is_public = EXCLUDED.is_public,
			updated_at = NOW()
		RETURNING ` + settingColumns
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	err := r.db.GetContext(ctx, s, query,
		s.ID, s.ClinicID, s.Key, s.Value, s.Type, s.Group, s.IsPublic)
	if err != nil {
		return fmt.Errorf("failed to save setting %s: %w", s.Key, err)
	}
	return nil
}

func (r *settingRepository) List(ctx context.Context, clinicID uuid.UUID) ([]*model.Setting, error) {
	return r.list(ctx, `WHERE clinic_id = $1`, clinicID)
}

func (r *settingRepository) ListByGroup(ctx context.Context, clinicID uuid.UUID, group string) ([]*model.Setting, error) {
	return r.list(ctx, `WHERE clinic_id = $1 AND group_name = $2`, clinicID, group)
}

func (r *settingRepository) ListPublic(ctx context.Context, clinicID uuid.UUID) ([]*model.Setting, error) {
	return r.list(ctx, `WHERE clinic_id = $1 AND is_public = TRUE`, clinicID)
}

func (r *settingRepository) list(ctx context.Context, where string, args ...interface{}) ([]*model.Setting, error) {
	var settings []*model.Setting
	query := `SELECT ` + settingColumns + ` FROM settings ` + where + ` ORDER BY key`
	if err := r.db.SelectContext(ctx, &settings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return settings, nil
}

func (r *settingRepository) Delete(ctx context.Context, clinicID uuid.UUID, key string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM settings WHERE clinic_id = $1 AND key = $2`, clinicID, key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return expectRows(res)
}
