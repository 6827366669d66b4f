// Package appcache wraps the cache store with the typed entries the
// authorization core reads on every request. Entries are invalidated on
// writes and otherwise expire by TTL.
package appcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/pkg/cache"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const licenseKey = "license:current"

type TTLs struct {
	Permissions time.Duration
	Settings    time.Duration
	License     time.Duration
}

type Service struct {
	store   cache.Store
	ttl     TTLs
	metrics *metrics.Metrics
}

func NewService(store cache.Store, ttl TTLs, m *metrics.Metrics) *Service {
	if ttl.Permissions <= 0 {
		ttl.Permissions = time.Hour
	}
	if ttl.Settings <= 0 {
		ttl.Settings = time.Hour
	}
	if ttl.License <= 0 {
		ttl.License = 5 * time.Minute
	}
	return &Service{store: store, ttl: ttl, metrics: m}
}

func permissionsKey(userID, clinicID uuid.UUID) string {
	return fmt.Sprintf("user:%s:perms:%s", userID, clinicID)
}

func roleKey(userID, clinicID uuid.UUID) string {
	return fmt.Sprintf("user:%s:role:%s", userID, clinicID)
}

func settingKey(clinicID uuid.UUID, key string) string {
	return fmt.Sprintf("clinic:%s:setting:%s", clinicID, key)
}

// get reads key into dest and reports a hit. Store failures count as misses.
func (s *Service) get(ctx context.Context, kind, key string, dest interface{}) bool {
	err := s.store.Get(ctx, key, dest)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	s.metrics.CacheResult(kind, err == nil)
	return err == nil
}

func (s *Service) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := s.store.Set(ctx, key, value, ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func (s *Service) CacheUserPermissions(ctx context.Context, userID, clinicID uuid.UUID, perms []model.PermissionSlug) {
	if perms == nil {
		perms = []model.PermissionSlug{}
	}
	s.set(ctx, permissionsKey(userID, clinicID), perms, s.ttl.Permissions)
}

func (s *Service) GetCachedUserPermissions(ctx context.Context, userID, clinicID uuid.UUID) ([]model.PermissionSlug, bool) {
	var perms []model.PermissionSlug
	if !s.get(ctx, "permissions", permissionsKey(userID, clinicID), &perms) {
		return nil, false
	}
	return perms, true
}

// CacheUserRole stores the role held in a clinic. A nil role records that
// the user holds none.
func (s *Service) CacheUserRole(ctx context.Context, userID, clinicID uuid.UUID, role *model.Role) {
	s.set(ctx, roleKey(userID, clinicID), roleEntry{Role: role}, s.ttl.Permissions)
}

func (s *Service) GetCachedUserRole(ctx context.Context, userID, clinicID uuid.UUID) (*model.Role, bool) {
	var e roleEntry
	if !s.get(ctx, "role", roleKey(userID, clinicID), &e) {
		return nil, false
	}
	return e.Role, true
}

func superAdminKey(userID uuid.UUID) string {
	return fmt.Sprintf("user:%s:superadmin", userID)
}

func (s *Service) CacheSuperAdmin(ctx context.Context, userID uuid.UUID, is bool) {
	s.set(ctx, superAdminKey(userID), is, s.ttl.Permissions)
}

func (s *Service) GetCachedSuperAdmin(ctx context.Context, userID uuid.UUID) (bool, bool) {
	var is bool
	if !s.get(ctx, "superadmin", superAdminKey(userID), &is) {
		return false, false
	}
	return is, true
}

type roleEntry struct {
	Role *model.Role `json:"role"`
}

// CacheLicense stores the current license. A nil license records that
// none exists.
func (s *Service) CacheLicense(ctx context.Context, l *model.License) {
	s.set(ctx, licenseKey, licenseEntry{License: l, Key: keyOf(l)}, s.ttl.License)
}

func (s *Service) GetCachedLicense(ctx context.Context) (*model.License, bool) {
	var e licenseEntry
	if !s.get(ctx, "license", licenseKey, &e) {
		return nil, false
	}
	if e.License != nil {
		e.License.LicenseKey = e.Key
	}
	return e.License, true
}

// License.LicenseKey is hidden from JSON so it is carried alongside
type licenseEntry struct {
	License *model.License `json:"license"`
	Key     string         `json:"key"`
}

func keyOf(l *model.License) string {
	if l == nil {
		return ""
	}
	return l.LicenseKey
}

func (s *Service) CacheSetting(ctx context.Context, setting *model.Setting) {
	s.set(ctx, settingKey(setting.ClinicID, setting.Key), setting, s.ttl.Settings)
}

func (s *Service) GetCachedSetting(ctx context.Context, clinicID uuid.UUID, key string) (*model.Setting, bool) {
	var setting model.Setting
	if !s.get(ctx, "setting", settingKey(clinicID, key), &setting) {
		return nil, false
	}
	return &setting, true
}

func (s *Service) InvalidateSetting(ctx context.Context, clinicID uuid.UUID, key string) {
	s.delete(ctx, settingKey(clinicID, key))
}

// InvalidateUserCache drops every entry derived from the user's roles
func (s *Service) InvalidateUserCache(ctx context.Context, userID uuid.UUID) {
	s.deletePattern(ctx, fmt.Sprintf("user:%s:*", userID))
}

// InvalidateClinicCache drops the clinic's settings
func (s *Service) InvalidateClinicCache(ctx context.Context, clinicID uuid.UUID) {
	s.deletePattern(ctx, fmt.Sprintf("clinic:%s:*", clinicID))
}

func (s *Service) InvalidateLicenseCache(ctx context.Context) {
	s.delete(ctx, licenseKey)
}

func (s *Service) ClearAllCache(ctx context.Context) error {
	if err := s.store.Flush(ctx); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}

func (s *Service) delete(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cache invalidation failed")
	}
}

func (s *Service) deletePattern(ctx context.Context, pattern string) {
	if err := s.store.DeletePattern(ctx, pattern); err != nil {
		log.Warn().Err(err).Str("pattern", pattern).Msg("cache invalidation failed")
	}
}
