package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type registrationRepository struct {
	BaseRepository
}

func NewRegistrationRepository(base BaseRepository) repository.RegistrationRepository {
	return &registrationRepository{base}
}

// CreateAccount inserts the user, their first clinic and the role
// assignment in one transaction.
func (r *registrationRepository) CreateAccount(ctx context.Context, user *model.User, clinic *model.Clinic, assignment *model.UserClinicRole) error {
	prepareUser(user)
	prepareClinic(clinic)
	clinic.OwnerID = &user.ID
	assignment.UserID = user.ID
	assignment.ClinicID = clinic.ID
	assignment.CreatedAt = user.CreatedAt

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertUserQuery, user); err != nil {
			return fmt.Errorf("failed to create user: %w", translate(err))
		}
		if _, err := tx.NamedExecContext(ctx, insertClinicQuery, clinic); err != nil {
			return fmt.Errorf("failed to create clinic: %w", translate(err))
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_clinic_roles (user_id, clinic_id, role_id, created_at) VALUES ($1, $2, $3, $4)`,
			assignment.UserID, assignment.ClinicID, assignment.RoleID, assignment.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		return nil
	})
}
