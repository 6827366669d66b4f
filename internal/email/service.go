package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

type Service interface {
	SendWelcome(ctx context.Context, email, name, clinicName string, trialDays int) error
	SendTrialReminder(ctx context.Context, email, name string, daysRemaining int) error
	SendCustom(ctx context.Context, to, subject, content string) error
}

type Config struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Sender delivers a composed message. gomail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	from   string
	sender Sender
}

// NewService returns an SMTP backed service, or one that only logs when
// mail is disabled
func NewService(cfg Config) Service {
	if !cfg.Enabled {
		return logService{}
	}
	return NewServiceWithSender(cfg.From, gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password))
}

func NewServiceWithSender(from string, sender Sender) Service {
	return &smtpService{from: from, sender: sender}
}

func (s *smtpService) SendWelcome(ctx context.Context, email, name, clinicName string, trialDays int) error {
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your clinic <b>%s</b> is ready. Your free trial runs for %d days.</p>",
		name, clinicName, trialDays,
	)
	return s.send(ctx, email, "Welcome to your clinic workspace", body)
}

func (s *smtpService) SendTrialReminder(ctx context.Context, email, name string, daysRemaining int) error {
	when := fmt.Sprintf("in %d days", daysRemaining)
	if daysRemaining <= 0 {
		when = "today"
	} else if daysRemaining == 1 {
		when = "tomorrow"
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your trial ends %s. Activate a license to keep access to your clinic.</p>",
		name, when,
	)
	return s.send(ctx, email, "Your trial is ending soon", body)
}

func (s *smtpService) SendCustom(ctx context.Context, to, subject, content string) error {
	return s.send(ctx, to, subject, content)
}

func (s *smtpService) send(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", html)

	if err := s.sender.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", to, err)
	}
	log.Debug().Str("to", to).Str("subject", subject).Msg("mail sent")
	return nil
}

type logService struct{}

func (logService) SendWelcome(_ context.Context, email, _, clinicName string, _ int) error {
	log.Info().Str("to", email).Str("clinic", clinicName).Msg("mail disabled, skipping welcome")
	return nil
}

func (logService) SendTrialReminder(_ context.Context, email, _ string, days int) error {
	log.Info().Str("to", email).Int("days_remaining", days).Msg("mail disabled, skipping trial reminder")
	return nil
}

func (logService) SendCustom(_ context.Context, to, subject, _ string) error {
	log.Info().Str("to", to).Str("subject", strings.TrimSpace(subject)).Msg("mail disabled, skipping")
	return nil
}
