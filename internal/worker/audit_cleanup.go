package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

type AuditCleaner interface {
	Cleanup(ctx context.Context, retention time.Duration) (int64, error)
}

// AuditCleanupJob removes audit entries older than the retention window
type AuditCleanupJob struct {
	audit         AuditCleaner
	retentionDays int
}

func NewAuditCleanupJob(audit AuditCleaner, retentionDays int) *AuditCleanupJob {
	return &AuditCleanupJob{audit: audit, retentionDays: retentionDays}
}

func (j *AuditCleanupJob) Name() string { return "audit_cleanup" }

func (j *AuditCleanupJob) Run(ctx context.Context) error {
	if j.retentionDays <= 0 {
		return nil
	}
	rows, err := j.audit.Cleanup(ctx, time.Duration(j.retentionDays)*24*time.Hour)
	if err != nil {
		return fmt.Errorf("failed to cleanup audit logs: %w", err)
	}
	log.Info().Int64("rows", rows).Int("retention_days", j.retentionDays).Msg("audit logs cleaned up")
	return nil
}
