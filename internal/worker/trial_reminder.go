package worker

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/email"
	"github.com/jwalitptl/clinic-api/internal/model"
)

type ExpiringTrials interface {
	ExpiringWithin(ctx context.Context, window time.Duration) ([]*model.User, error)
}

// TrialReminderJob mails unlicensed users whose trial ends within the
// configured number of days
type TrialReminderJob struct {
	trials ExpiringTrials
	mailer email.Service
	days   int
	now    func() time.Time
}

func NewTrialReminderJob(trials ExpiringTrials, mailer email.Service, days int) *TrialReminderJob {
	if days <= 0 {
		days = 3
	}
	return &TrialReminderJob{trials: trials, mailer: mailer, days: days, now: time.Now}
}

func (j *TrialReminderJob) Name() string { return "trial_reminder" }

func (j *TrialReminderJob) Run(ctx context.Context) error {
	users, err := j.trials.ExpiringWithin(ctx, time.Duration(j.days)*24*time.Hour)
	if err != nil {
		return err
	}

	now := j.now()
	var failed []error
	for _, u := range users {
		if u.HasActivatedLicense || u.TrialEndsAt == nil {
			continue
		}
		days := int(math.Ceil(u.TrialEndsAt.Sub(now).Hours() / 24))
		if days < 1 {
			days = 1
		}
		if err := j.mailer.SendTrialReminder(ctx, u.Email, u.Name, days); err != nil {
			log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("failed to send trial reminder")
			failed = append(failed, err)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d trial reminders failed: %w", len(failed), len(users), errors.Join(failed...))
	}
	return nil
}
