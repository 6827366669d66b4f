package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

const licenseColumns = `id, license_key, type, status, features, max_users, max_clinics,
	max_patients, max_appointments_per_month, expires_at, activated_at, activated_by,
	licensee_name, licensee_email, created_at, updated_at`

type licenseRepository struct {
	BaseRepository
}

func NewLicenseRepository(base BaseRepository) repository.LicenseRepository {
	return &licenseRepository{base}
}

func (r *licenseRepository) GetCurrent(ctx context.Context) (*model.License, error) {
	var l model.License
	query := `SELECT ` + licenseColumns + ` FROM licenses ORDER BY created_at DESC LIMIT 1`
	if err := r.db.GetContext(ctx, &l, query); err != nil {
		return nil, fmt.Errorf("failed to get current license: %w", translate(err))
	}
	return &l, nil
}

func (r *licenseRepository) GetByKey(ctx context.Context, key string) (*model.License, error) {
	var l model.License
	query := `SELECT ` + licenseColumns + ` FROM licenses WHERE license_key = $1`
	if err := r.db.GetContext(ctx, &l, query, key); err != nil {
		return nil, fmt.Errorf("failed to get license: %w", translate(err))
	}
	return &l, nil
}

func (r *licenseRepository) Create(ctx context.Context, l *model.License) error {
	query := `
		INSERT INTO licenses (` + licenseColumns + `)
		VALUES (:id, :license_key, :type, :status, :features, :max_users, :max_clinics,
			:max_patients, :max_appointments_per_month, :expires_at, :activated_at, :activated_by,
			:licensee_name, :licensee_email, :created_at, :updated_at)
	`
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.CreatedAt = time.Now().UTC()
	l.UpdatedAt = l.CreatedAt
	if _, err := r.db.NamedExecContext(ctx, query, l); err != nil {
		return fmt.Errorf("failed to create license: %w", translate(err))
	}
	return nil
}

func (r *licenseRepository) Update(ctx context.Context, l *model.License) error {
	query := `
		UPDATE licenses
		SET status = :status, expires_at = :expires_at, activated_at = :activated_at,
			activated_by = :activated_by, features = :features, updated_at = :updated_at
		WHERE id = :id
	`
	l.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, query, l)
	if err != nil {
		return fmt.Errorf("failed to update license: %w", err)
	}
	return expectRows(res)
}

func (r *licenseRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE licenses
		SET status = $1, updated_at = $2
		WHERE status = $3 AND expires_at IS NOT NULL AND expires_at <= $2
	`
	res, err := r.db.ExecContext(ctx, query, model.LicenseStatusExpired, now, model.LicenseStatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to expire licenses: %w", err)
	}
	return res.RowsAffected()
}
