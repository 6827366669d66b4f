package license

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/appcache"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
)

var (
	ErrLicenseNotFound   = errors.New("license not found")
	ErrLicenseInactive   = errors.New("license is not active")
	ErrLicenseExpired    = errors.New("license has expired")
	ErrInvalidTransition = errors.New("invalid license transition")
	ErrUnknownUsageKind  = errors.New("unknown usage kind")
)

type Service struct {
	licenses    repository.LicenseRepository
	usage       repository.UsageRepository
	users       repository.UserRepository
	cache       *appcache.Service
	auditor     *audit.Service
	trialLimits model.UsageLimits
	now         func() time.Time
}

func NewService(
	licenses repository.LicenseRepository,
	usage repository.UsageRepository,
	users repository.UserRepository,
	cache *appcache.Service,
	auditor *audit.Service,
	trialLimits model.UsageLimits,
) *Service {
	return &Service{
		licenses:    licenses,
		usage:       usage,
		users:       users,
		cache:       cache,
		auditor:     auditor,
		trialLimits: trialLimits,
		now:         time.Now,
	}
}

// Current returns the deployment license, or nil when none was provisioned
func (s *Service) Current(ctx context.Context) (*model.License, error) {
	if l, ok := s.cache.GetCachedLicense(ctx); ok {
		return l, nil
	}
	l, err := s.licenses.GetCurrent(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		s.cache.CacheLicense(ctx, nil)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get license: %w", err)
	}
	s.cache.CacheLicense(ctx, l)
	return l, nil
}

// ShouldRestrictApplication reports whether the user must be kept out of
// the gated application. Without a license the trial decides.
func (s *Service) ShouldRestrictApplication(ctx context.Context, user *model.User) bool {
	now := s.now()
	l, err := s.Current(ctx)
	if err != nil {
		log.Error().Err(err).Msg("license lookup failed, restricting")
		return true
	}

	if l == nil {
		if user != nil && user.IsOnTrial(now) {
			return false
		}
		ev := log.Warn().Str("reason", "no license and no active trial")
		if user != nil {
			ev = ev.Str("user_id", user.ID.String())
		}
		ev.Msg("application restricted")
		return true
	}

	if status := l.EffectiveStatus(now); status != model.LicenseStatusActive {
		log.Warn().
			Str("license_id", l.ID.String()).
			Str("status", string(status)).
			Msg("application restricted")
		return true
	}
	return false
}

// HasFeature reads the license feature set. No license means no features.
func (s *Service) HasFeature(ctx context.Context, feature model.Feature) bool {
	l, err := s.Current(ctx)
	if err != nil {
		log.Error().Err(err).Str("feature", string(feature)).Msg("license lookup failed")
		return false
	}
	if l == nil || !l.IsActive(s.now()) {
		return false
	}
	if !l.HasFeature(feature) {
		log.Warn().Str("feature", string(feature)).Msg("feature not licensed")
		return false
	}
	return true
}

// FeatureAllowed is HasFeature extended to unlicensed users on an open
// trial, who get every feature.
func (s *Service) FeatureAllowed(ctx context.Context, user *model.User, feature model.Feature) bool {
	l, err := s.Current(ctx)
	if err != nil {
		log.Error().Err(err).Str("feature", string(feature)).Msg("license lookup failed")
		return false
	}
	if l == nil {
		return user != nil && user.IsOnTrial(s.now())
	}
	return s.HasFeature(ctx, feature)
}

// CheckUsageLimit counts the current rows of kind against the ceiling.
// Unlicensed deployments use the configured trial limits.
func (s *Service) CheckUsageLimit(ctx context.Context, kind model.UsageKind) (model.UsageResult, error) {
	if !kind.Valid() {
		return model.UsageResult{Kind: kind}, fmt.Errorf("%w: %q", ErrUnknownUsageKind, kind)
	}

	l, err := s.Current(ctx)
	if err != nil {
		return model.UsageResult{Kind: kind}, err
	}
	limit := s.trialLimits.Limit(kind)
	if l != nil {
		limit = l.Limit(kind)
	}

	current, err := s.usage.Count(ctx, kind, s.now())
	if err != nil {
		return model.UsageResult{Kind: kind}, fmt.Errorf("failed to count %s: %w", kind, err)
	}

	result := model.NewUsageResult(kind, current, limit)
	if !result.Allowed {
		log.Warn().
			Str("kind", string(kind)).
			Int("current", current).
			Int("limit", limit).
			Msg("usage limit reached")
	}
	return result, nil
}

// Usage reports every usage kind
func (s *Service) Usage(ctx context.Context) (map[model.UsageKind]model.UsageResult, error) {
	kinds := []model.UsageKind{model.UsageUsers, model.UsageClinics, model.UsagePatients, model.UsageAppointments}
	out := make(map[model.UsageKind]model.UsageResult, len(kinds))
	for _, kind := range kinds {
		r, err := s.CheckUsageLimit(ctx, kind)
		if err != nil {
			return nil, err
		}
		out[kind] = r
	}
	return out, nil
}

// Overview collects what the license status page shows
func (s *Service) Overview(ctx context.Context, user *model.User) (*model.LicenseOverview, error) {
	now := s.now()
	l, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := s.Usage(ctx)
	if err != nil {
		return nil, err
	}

	overview := &model.LicenseOverview{
		License:         l,
		DaysUntilExpiry: -1,
		Restricted:      s.ShouldRestrictApplication(ctx, user),
		Usage:           usage,
	}
	if user != nil {
		overview.Trial = user.TrialStatusAt(now)
	}
	if l != nil {
		overview.EffectiveStatus = l.EffectiveStatus(now)
		overview.DaysUntilExpiry = l.DaysUntilExpiry(now)
	}
	return overview, nil
}

// Activate binds the license identified by key to the user
func (s *Service) Activate(ctx context.Context, user *model.User, key string) (*model.License, error) {
	now := s.now()
	l, err := s.licenses.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrLicenseNotFound
		}
		return nil, fmt.Errorf("failed to get license: %w", err)
	}

	switch l.Status {
	case model.LicenseStatusRevoked, model.LicenseStatusSuspended:
		return nil, fmt.Errorf("%w: %s", ErrLicenseInactive, l.Status)
	}
	if l.ExpiresAt != nil && !now.Before(*l.ExpiresAt) {
		return nil, ErrLicenseExpired
	}

	l.Status = model.LicenseStatusActive
	if l.ActivatedAt == nil {
		at := now.UTC()
		l.ActivatedAt = &at
		l.ActivatedBy = &user.ID
	}
	if err := s.licenses.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to update license: %w", err)
	}
	if err := s.users.MarkLicenseActivated(ctx, user.ID, key); err != nil {
		return nil, fmt.Errorf("failed to link license to user: %w", err)
	}
	user.HasActivatedLicense = true
	user.LicenseKey = &key

	s.cache.InvalidateLicenseCache(ctx)
	s.auditor.Log(ctx, model.AuditActionActivate, model.AuditEntityLicense, l.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"type": l.Type, "user_id": user.ID},
	})
	log.Info().Str("license_id", l.ID.String()).Str("user_id", user.ID.String()).Msg("license activated")
	return l, nil
}

func (s *Service) Suspend(ctx context.Context) (*model.License, error) {
	return s.transition(ctx, model.LicenseStatusSuspended)
}

func (s *Service) Revoke(ctx context.Context) (*model.License, error) {
	return s.transition(ctx, model.LicenseStatusRevoked)
}

// Reactivate returns a suspended or expired license to active. A license
// whose expiry date has passed stays expired.
func (s *Service) Reactivate(ctx context.Context) (*model.License, error) {
	l, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	if l != nil && l.ExpiresAt != nil && !s.now().Before(*l.ExpiresAt) {
		return nil, ErrLicenseExpired
	}
	return s.transition(ctx, model.LicenseStatusActive)
}

func (s *Service) transition(ctx context.Context, next model.LicenseStatus) (*model.License, error) {
	l, err := s.Current(ctx)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, ErrLicenseNotFound
	}

	prev := l.Status
	if err := l.TransitionTo(next); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransition, err)
	}
	if err := s.licenses.Update(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to update license: %w", err)
	}
	s.cache.InvalidateLicenseCache(ctx)

	s.auditor.Log(ctx, model.AuditActionTransition, model.AuditEntityLicense, l.ID, &audit.LogOptions{
		Changes: map[string]interface{}{"from": prev, "to": next},
	})
	log.Info().
		Str("license_id", l.ID.String()).
		Str("from", string(prev)).
		Str("to", string(next)).
		Msg("license status changed")
	return l, nil
}

// ExpireOverdue persists active to expired for licenses past their date
func (s *Service) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.licenses.ExpireOverdue(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to expire licenses: %w", err)
	}
	if n > 0 {
		s.cache.InvalidateLicenseCache(ctx)
		log.Info().Int64("count", n).Msg("expired overdue licenses")
	}
	return n, nil
}
