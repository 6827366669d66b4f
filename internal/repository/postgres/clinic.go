package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

const clinicColumns = `id, name, slug, email, phone, address, status, owner_id, created_at, updated_at`

const insertClinicQuery = `
	INSERT INTO clinics (` + clinicColumns + `)
	VALUES (:id, :name, :slug, :email, :phone, :address, :status, :owner_id, :created_at, :updated_at)
`

type clinicRepository struct {
	BaseRepository
}

func NewClinicRepository(base BaseRepository) repository.ClinicRepository {
	return &clinicRepository{base}
}

func prepareClinic(clinic *model.Clinic) {
	now := time.Now().UTC()
	if clinic.ID == uuid.Nil {
		clinic.ID = uuid.New()
	}
	if clinic.Slug == "" {
		clinic.Slug = model.Slugify(clinic.Name)
	}
	if clinic.Status == "" {
		clinic.Status = model.ClinicStatusActive
	}
	clinic.CreatedAt = now
	clinic.UpdatedAt = now
}

func (r *clinicRepository) Create(ctx context.Context, clinic *model.Clinic) error {
	prepareClinic(clinic)
	if _, err := r.db.NamedExecContext(ctx, insertClinicQuery, clinic); err != nil {
		return fmt.Errorf("failed to create clinic: %w", translate(err))
	}
	return nil
}

func (r *clinicRepository) Get(ctx context.Context, id uuid.UUID) (*model.Clinic, error) {
	var clinic model.Clinic
	query := `SELECT ` + clinicColumns + ` FROM clinics WHERE id = $1`
	if err := r.db.GetContext(ctx, &clinic, query, id); err != nil {
		return nil, fmt.Errorf("failed to get clinic: %w", translate(err))
	}
	return &clinic, nil
}

func (r *clinicRepository) Update(ctx context.Context, clinic *model.Clinic) error {
	query := `
		UPDATE clinics
		SET name = :name, email = :email, phone = :phone, address = :address,
			status = :status, updated_at = :updated_at
		WHERE id = :id
	`
	clinic.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, query, clinic)
	if err != nil {
		return fmt.Errorf("failed to update clinic: %w", translate(err))
	}
	return expectRows(res)
}

// ListForUser returns the clinics the user holds a role in
func (r *clinicRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*model.Clinic, error) {
	query := `
		SELECT c.id, c.name, c.slug, c.email, c.phone, c.address, c.status, c.owner_id,
			c.created_at, c.updated_at
		FROM clinics c
		JOIN user_clinic_roles ucr ON ucr.clinic_id = c.id
		WHERE ucr.user_id = $1
		ORDER BY c.name
	`
	var clinics []*model.Clinic
	if err := r.db.SelectContext(ctx, &clinics, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list clinics: %w", err)
	}
	return clinics, nil
}

func (r *clinicRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM clinics WHERE slug = $1)`, slug); err != nil {
		return false, fmt.Errorf("failed to check clinic slug: %w", err)
	}
	return exists, nil
}
