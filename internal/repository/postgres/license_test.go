package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
)

func TestLicenseRepository_GetCurrent(t *testing.T) {
	base, mock := newMock(t)
	repo := NewLicenseRepository(base)

	id := uuid.New()
	expires := time.Now().Add(24 * time.Hour)
	rows := sqlmock.NewRows([]string{"id", "license_key", "type", "status", "features", "max_patients", "expires_at"}).
		AddRow(id.String(), "KEY-123456", "professional", "active", "{billing,reports}", 500, expires)
	mock.ExpectQuery(`FROM licenses ORDER BY created_at DESC LIMIT 1`).WillReturnRows(rows)

	l, err := repo.GetCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, l.ID)
	assert.Equal(t, model.LicenseStatusActive, l.Status)
	assert.True(t, l.HasFeature(model.FeatureBilling))
	assert.False(t, l.HasFeature(model.FeatureInventory))
	assert.Equal(t, 500, l.Limit(model.UsagePatients))
}

func TestLicenseRepository_GetCurrentNone(t *testing.T) {
	base, mock := newMock(t)
	repo := NewLicenseRepository(base)

	mock.ExpectQuery(`FROM licenses`).WillReturnError(sql.ErrNoRows)

	_, err := repo.GetCurrent(context.Background())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLicenseRepository_ExpireOverdue(t *testing.T) {
	base, mock := newMock(t)
	repo := NewLicenseRepository(base)
	now := time.Now()

	mock.ExpectExec(`UPDATE licenses\s+SET status = \$1, updated_at = \$2\s+WHERE status = \$3`).
		WithArgs(model.LicenseStatusExpired, now, model.LicenseStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.ExpireOverdue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestUsageRepository_CountAppointmentsInMonth(t *testing.T) {
	base, mock := newMock(t)
	repo := NewUsageRepository(base)
	now := time.Date(2025, time.March, 17, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM appointments`).
		WithArgs(time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	n, err := repo.Count(context.Background(), model.UsageAppointments, now)
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = repo.Count(context.Background(), model.UsageKind("beds"), now)
	assert.Error(t, err)
}
