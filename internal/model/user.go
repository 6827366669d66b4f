package model

import (
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
)

// TrialDuration is the default length of the trial window
const TrialDuration = 14 * 24 * time.Hour

var ErrTrialAlreadyStarted = errors.New("trial already started")

// User represents an account holder. Role assignments live in user_clinic_roles.
type User struct {
	Base
	Name                string     `json:"name" db:"name"`
	Email               string     `json:"email" db:"email"`
	PasswordHash        string     `json:"-" db:"password_hash"`
	Phone               *string    `json:"phone,omitempty" db:"phone"`
	IsActive            bool       `json:"is_active" db:"is_active"`
	IsSuperAdmin        bool       `json:"is_superadmin" db:"is_superadmin"`
	TrialStartedAt      *time.Time `json:"trial_started_at,omitempty" db:"trial_started_at"`
	TrialEndsAt         *time.Time `json:"trial_ends_at,omitempty" db:"trial_ends_at"`
	LicenseKey          *string    `json:"-" db:"license_key"`
	HasActivatedLicense bool       `json:"has_activated_license" db:"has_activated_license"`
	OnboardingCompleted bool       `json:"onboarding_completed" db:"onboarding_completed"`
	LastLoginAt         *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
}

// StartTrial opens a trial window of the given length. A trial that was
// already started is never reset.
func (u *User) StartTrial(now time.Time, length time.Duration) error {
	if u.TrialStartedAt != nil {
		return ErrTrialAlreadyStarted
	}
	if length <= 0 {
		length = TrialDuration
	}
	start := now.UTC()
	end := start.Add(length)
	u.TrialStartedAt = &start
	u.TrialEndsAt = &end
	return nil
}

// IsOnTrial reports whether the trial window is open at now
func (u *User) IsOnTrial(now time.Time) bool {
	if u.TrialStartedAt == nil || u.TrialEndsAt == nil {
		return false
	}
	return !now.Before(*u.TrialStartedAt) && now.Before(*u.TrialEndsAt)
}

// IsTrialExpired reports whether a started trial has ended at now
func (u *User) IsTrialExpired(now time.Time) bool {
	if u.TrialEndsAt == nil {
		return false
	}
	return !now.Before(*u.TrialEndsAt)
}

// TrialDaysRemaining returns whole days left in the trial, 0 when not on trial
func (u *User) TrialDaysRemaining(now time.Time) int {
	if !u.IsOnTrial(now) {
		return 0
	}
	return int(math.Floor(u.TrialEndsAt.Sub(now).Hours() / 24))
}

// TrialDaysExpired returns whole days since the trial ended, 0 when not expired
func (u *User) TrialDaysExpired(now time.Time) int {
	if !u.IsTrialExpired(now) {
		return 0
	}
	return int(math.Floor(now.Sub(*u.TrialEndsAt).Hours() / 24))
}

// UserClinicRole is the (user, clinic, role) assignment. The pair
// (user_id, clinic_id) is unique.
type UserClinicRole struct {
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	ClinicID  uuid.UUID `json:"clinic_id" db:"clinic_id"`
	RoleID    uuid.UUID `json:"role_id" db:"role_id"`
	RoleName  RoleName  `json:"role_name" db:"role_name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// UserProfile is returned by /me
type UserProfile struct {
	User        *User            `json:"user"`
	Roles       []UserClinicRole `json:"roles"`
	PrimaryRole *Role            `json:"primary_role,omitempty"`
	Trial       TrialStatus      `json:"trial"`
}

// TrialStatus summarizes the trial window at a point in time
type TrialStatus struct {
	Started       bool       `json:"started"`
	OnTrial       bool       `json:"on_trial"`
	Expired       bool       `json:"expired"`
	DaysRemaining int        `json:"days_remaining"`
	DaysExpired   int        `json:"days_expired"`
	EndsAt        *time.Time `json:"ends_at,omitempty"`
}

// TrialStatusAt computes the trial summary for u at now
func (u *User) TrialStatusAt(now time.Time) TrialStatus {
	return TrialStatus{
		Started:       u.TrialStartedAt != nil,
		OnTrial:       u.IsOnTrial(now),
		Expired:       u.IsTrialExpired(now),
		DaysRemaining: u.TrialDaysRemaining(now),
		DaysExpired:   u.TrialDaysExpired(now),
		EndsAt:        u.TrialEndsAt,
	}
}
