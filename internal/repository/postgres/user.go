package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

const userColumns = `id, name, email, password_hash, phone, is_active, is_superadmin,
	trial_started_at, trial_ends_at, license_key, has_activated_license,
	onboarding_completed, last_login_at, created_at, updated_at`

const insertUserQuery = `
	INSERT INTO users (` + userColumns + `)
	VALUES (:id, :name, :email, :password_hash, :phone, :is_active, :is_superadmin,
		:trial_started_at, :trial_ends_at, :license_key, :has_activated_license,
		:onboarding_completed, :last_login_at, :created_at, :updated_at)
`

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func prepareUser(user *model.User) {
	now := time.Now().UTC()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	prepareUser(user)
	if _, err := r.db.NamedExecContext(ctx, insertUserQuery, user); err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("failed to get user: %w", translate(err))
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	if err := r.db.GetContext(ctx, &user, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", translate(err))
	}
	return &user, nil
}

func (r *userRepository) Update(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET name = :name, phone = :phone, is_active = :is_active,
			is_superadmin = :is_superadmin, updated_at = :updated_at
		WHERE id = :id
	`
	user.UpdatedAt = time.Now().UTC()
	res, err := r.db.NamedExecContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", translate(err))
	}
	return expectRows(res)
}

// UpdateTrial writes the trial window only while no trial was recorded,
// so concurrent starts cannot reset an open window.
func (r *userRepository) UpdateTrial(ctx context.Context, user *model.User) error {
	query := `
		UPDATE users
		SET trial_started_at = $1, trial_ends_at = $2, updated_at = NOW()
		WHERE id = $3 AND trial_started_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, user.TrialStartedAt, user.TrialEndsAt, user.ID)
	if err != nil {
		return fmt.Errorf("failed to start trial: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrTrialAlreadyStarted
	}
	return nil
}

func (r *userRepository) MarkLicenseActivated(ctx context.Context, userID uuid.UUID, licenseKey string) error {
	query := `
		UPDATE users
		SET has_activated_license = TRUE, license_key = $1, updated_at = NOW()
		WHERE id = $2
	`
	res, err := r.db.ExecContext(ctx, query, licenseKey, userID)
	if err != nil {
		return fmt.Errorf("failed to mark license activated: %w", err)
	}
	return expectRows(res)
}

func (r *userRepository) CompleteOnboarding(ctx context.Context, userID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET onboarding_completed = TRUE, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to complete onboarding: %w", err)
	}
	return expectRows(res)
}

func (r *userRepository) TouchLastLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, at, userID)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

func (r *userRepository) ListTrialsEndingBetween(ctx context.Context, from, to time.Time) ([]*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE has_activated_license = FALSE
			AND is_active = TRUE
			AND trial_ends_at >= $1 AND trial_ends_at < $2
		ORDER BY trial_ends_at
	`
	var users []*model.User
	if err := r.db.SelectContext(ctx, &users, query, from, to); err != nil {
		return nil, fmt.Errorf("failed to list expiring trials: %w", err)
	}
	return users, nil
}
