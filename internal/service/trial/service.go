package trial

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type Service struct {
	users  repository.UserRepository
	length time.Duration
	now    func() time.Time
}

func NewService(users repository.UserRepository, length time.Duration) *Service {
	if length <= 0 {
		length = model.TrialDuration
	}
	return &Service{users: users, length: length, now: time.Now}
}

// Open sets the trial window on a user that is not stored yet
func (s *Service) Open(user *model.User) error {
	return user.StartTrial(s.now(), s.length)
}

// Days is the configured trial length in whole days
func (s *Service) Days() int {
	return int(s.length.Hours() / 24)
}

// StartTrial opens the trial window for a stored user once. Repeated calls
// return model.ErrTrialAlreadyStarted and leave the window untouched.
func (s *Service) StartTrial(ctx context.Context, user *model.User) error {
	if err := s.Open(user); err != nil {
		return err
	}
	if err := s.users.UpdateTrial(ctx, user); err != nil {
		if errors.Is(err, model.ErrTrialAlreadyStarted) {
			return err
		}
		return fmt.Errorf("failed to start trial: %w", err)
	}
	log.Info().
		Str("user_id", user.ID.String()).
		Time("ends_at", *user.TrialEndsAt).
		Msg("trial started")
	return nil
}

func (s *Service) Status(user *model.User) model.TrialStatus {
	return user.TrialStatusAt(s.now())
}

// Blocks reports whether the trial gate must stop the user: the trial has
// ended and no license was activated
func (s *Service) Blocks(user *model.User) bool {
	if user.HasActivatedLicense {
		return false
	}
	return user.IsTrialExpired(s.now())
}

// ExpiringWithin lists unlicensed users whose trial ends in the next window
func (s *Service) ExpiringWithin(ctx context.Context, window time.Duration) ([]*model.User, error) {
	now := s.now()
	users, err := s.users.ListTrialsEndingBetween(ctx, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("failed to list expiring trials: %w", err)
	}
	return users, nil
}
