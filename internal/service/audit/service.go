package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/requestctx"
)

type Service struct {
	repo repository.AuditRepository
	now  func() time.Time
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo, now: time.Now}
}

type LogOptions struct {
	Changes   interface{}
	ClinicID  *uuid.UUID
	IPAddress string
}

// Log records a mutation. The actor and client address are taken from the
// request context when present. Failures are logged and never returned so
// an audit outage cannot fail the audited operation.
func (s *Service) Log(ctx context.Context, action, entityType string, entityID uuid.UUID, opts *LogOptions) {
	if opts == nil {
		opts = &LogOptions{}
	}

	entry := &model.AuditLog{
		ID:         uuid.New(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ClinicID:   opts.ClinicID,
		IPAddress:  opts.IPAddress,
		CreatedAt:  s.now().UTC(),
	}

	if rc, ok := requestctx.FromContext(ctx); ok {
		if rc.User != nil {
			id := rc.User.ID
			entry.UserID = &id
		}
		if entry.ClinicID == nil && rc.HasClinic() {
			id := rc.ClinicID
			entry.ClinicID = &id
		}
		if entry.IPAddress == "" {
			entry.IPAddress = rc.ClientIP
		}
	}

	if opts.Changes != nil {
		changes, err := json.Marshal(opts.Changes)
		if err != nil {
			log.Warn().Err(err).Str("entity_type", entityType).Msg("failed to encode audit changes")
		} else {
			entry.Changes = changes
		}
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		log.Error().
			Err(err).
			Str("action", action).
			Str("entity_type", entityType).
			Str("entity_id", entityID.String()).
			Msg("failed to write audit log")
	}
}

func (s *Service) List(ctx context.Context, filters *model.AuditFilters) ([]*model.AuditLog, error) {
	return s.repo.List(ctx, filters)
}

// Cleanup removes entries older than the retention window
func (s *Service) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	return s.repo.DeleteBefore(ctx, s.now().Add(-retention))
}
