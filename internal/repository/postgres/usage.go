package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

type usageRepository struct {
	BaseRepository
}

func NewUsageRepository(base BaseRepository) repository.UsageRepository {
	return &usageRepository{base}
}

// Count returns the current number of rows counted against kind.
// Appointments are counted for the calendar month containing now.
func (r *usageRepository) Count(ctx context.Context, kind model.UsageKind, now time.Time) (int, error) {
	var (
		query string
		args  []interface{}
	)
	switch kind {
	case model.UsageUsers:
		query = `SELECT COUNT(*) FROM users WHERE is_active = TRUE`
	case model.UsageClinics:
		query = `SELECT COUNT(*) FROM clinics`
	case model.UsagePatients:
		query = `SELECT COUNT(*) FROM patients`
	case model.UsageAppointments:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		query = `SELECT COUNT(*) FROM appointments WHERE scheduled_at >= $1 AND scheduled_at < $2`
		args = append(args, start, start.AddDate(0, 1, 0))
	default:
		return 0, fmt.Errorf("unknown usage kind %q", kind)
	}

	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", kind, err)
	}
	return n, nil
}
