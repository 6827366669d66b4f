package setting

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/appcache"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
)

var (
	ErrSettingNotFound = errors.New("setting not found")
	ErrInvalidKey      = errors.New("invalid setting key")
	ErrInvalidValue    = errors.New("invalid setting value")
)

var keyPattern = regexp.MustCompile(`^[a-z][a-z0-9_.-]{0,127}$`)

type Service struct {
	repo    repository.SettingRepository
	cache   *appcache.Service
	auditor *audit.Service
}

func NewService(repo repository.SettingRepository, cache *appcache.Service, auditor *audit.Service) *Service {
	return &Service{repo: repo, cache: cache, auditor: auditor}
}

// Get returns the setting row, reading through the cache
func (s *Service) Get(ctx context.Context, clinicID uuid.UUID, key string) (*model.Setting, error) {
	if setting, ok := s.cache.GetCachedSetting(ctx, clinicID, key); ok {
		return setting, nil
	}
	setting, err := s.repo.Get(ctx, clinicID, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSettingNotFound
		}
		return nil, fmt.Errorf("failed to get setting: %w", err)
	}
	s.cache.CacheSetting(ctx, setting)
	return setting, nil
}

func (s *Service) lookup(ctx context.Context, clinicID uuid.UUID, key string) (*model.Setting, bool) {
	setting, err := s.Get(ctx, clinicID, key)
	if err != nil {
		if !errors.Is(err, ErrSettingNotFound) {
			log.Warn().Err(err).Str("clinic_id", clinicID.String()).Str("key", key).Msg("setting lookup failed, using default")
		}
		return nil, false
	}
	return setting, true
}

func (s *Service) GetString(ctx context.Context, clinicID uuid.UUID, key, def string) string {
	setting, ok := s.lookup(ctx, clinicID, key)
	if !ok {
		return def
	}
	return setting.Value
}

func (s *Service) GetBool(ctx context.Context, clinicID uuid.UUID, key string, def bool) bool {
	setting, ok := s.lookup(ctx, clinicID, key)
	if !ok {
		return def
	}
	v, err := setting.AsBool()
	if err != nil {
		log.Warn().Err(err).Msg("setting is not a boolean, using default")
		return def
	}
	return v
}

func (s *Service) GetInt(ctx context.Context, clinicID uuid.UUID, key string, def int64) int64 {
	setting, ok := s.lookup(ctx, clinicID, key)
	if !ok {
		return def
	}
	v, err := setting.AsInt()
	if err != nil {
		log.Warn().Err(err).Msg("setting is not an integer, using default")
		return def
	}
	return v
}

// GetJSON decodes the setting into dest and reports whether it was found
func (s *Service) GetJSON(ctx context.Context, clinicID uuid.UUID, key string, dest interface{}) (bool, error) {
	setting, ok := s.lookup(ctx, clinicID, key)
	if !ok {
		return false, nil
	}
	if err := setting.AsJSON(dest); err != nil {
		return true, err
	}
	return true, nil
}

// Set upserts a setting. The type is inferred from the value when empty.
func (s *Service) Set(ctx context.Context, clinicID uuid.UUID, key string, req *model.SetSettingRequest) (*model.Setting, error) {
	if !keyPattern.MatchString(key) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	value, typ, err := model.EncodeSettingValue(req.Value, req.Type)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	setting := &model.Setting{
		ClinicID: clinicID,
		Key:      key,
		Value:    value,
		Type:     typ,
		Group:    req.Group,
		IsPublic: req.IsPublic,
	}
	if setting.Group == "" {
		setting.Group = "general"
	}
	if _, err := setting.Typed(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}

	if err := s.repo.Upsert(ctx, setting); err != nil {
		return nil, fmt.Errorf("failed to save setting: %w", err)
	}
	s.cache.InvalidateSetting(ctx, clinicID, key)

	s.auditor.Log(ctx, model.AuditActionUpdate, model.AuditEntitySetting, setting.ID, &audit.LogOptions{
		ClinicID: &clinicID,
		Changes:  map[string]interface{}{"key": key, "value": value, "type": typ},
	})
	return setting, nil
}

func (s *Service) List(ctx context.Context, clinicID uuid.UUID) ([]*model.Setting, error) {
	return s.repo.List(ctx, clinicID)
}

// GetGroup returns the group as key to typed value
func (s *Service) GetGroup(ctx context.Context, clinicID uuid.UUID, group string) (map[string]interface{}, error) {
	settings, err := s.repo.ListByGroup(ctx, clinicID, group)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return typedMap(settings), nil
}

// GetPublic returns the settings flagged public as key to typed value
func (s *Service) GetPublic(ctx context.Context, clinicID uuid.UUID) (map[string]interface{}, error) {
	settings, err := s.repo.ListPublic(ctx, clinicID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	return typedMap(settings), nil
}

func (s *Service) Delete(ctx context.Context, clinicID uuid.UUID, key string) error {
	if err := s.repo.Delete(ctx, clinicID, key); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSettingNotFound
		}
		return fmt.Errorf("failed to delete setting: %w", err)
	}
	s.cache.InvalidateSetting(ctx, clinicID, key)

	s.auditor.Log(ctx, model.AuditActionDelete, model.AuditEntitySetting, uuid.Nil, &audit.LogOptions{
		ClinicID: &clinicID,
		Changes:  map[string]interface{}{"key": key},
	})
	return nil
}

func typedMap(settings []*model.Setting) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for _, setting := range settings {
		v, err := setting.Typed()
		if err != nil {
			log.Warn().Err(err).Str("key", setting.Key).Msg("skipping malformed setting")
			continue
		}
		out[setting.Key] = v
	}
	return out
}
