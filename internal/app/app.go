// Package app builds the service graph shared by the API and worker binaries
package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/email"
	"github.com/jwalitptl/clinic-api/internal/repository"
	"github.com/jwalitptl/clinic-api/internal/service/appcache"
	"github.com/jwalitptl/clinic-api/internal/service/audit"
	"github.com/jwalitptl/clinic-api/internal/service/auth"
	"github.com/jwalitptl/clinic-api/internal/service/clinic"
	"github.com/jwalitptl/clinic-api/internal/service/license"
	"github.com/jwalitptl/clinic-api/internal/service/patient"
	"github.com/jwalitptl/clinic-api/internal/service/rbac"
	"github.com/jwalitptl/clinic-api/internal/service/setting"
	"github.com/jwalitptl/clinic-api/internal/service/trial"
	jwtauth "github.com/jwalitptl/clinic-api/pkg/auth"
	"github.com/jwalitptl/clinic-api/pkg/cache"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
	"github.com/jwalitptl/clinic-api/pkg/security"
)

type Services struct {
	Cache    *appcache.Service
	Audit    *audit.Service
	RBAC     *rbac.Service
	Trial    *trial.Service
	License  *license.Service
	Setting  *setting.Service
	Auth     *auth.Service
	Clinic   *clinic.Service
	Patient  *patient.Service
	Mailer   email.Service
	Metrics  *metrics.Metrics
	Store    cache.Store
	Repos    *repository.Repositories
	Config   *config.Config
}

// OpenStore returns the cache backend selected by cache.driver
func OpenStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Driver {
	case config.CacheDriverRedis:
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			URL:          cfg.Redis.URL,
			Prefix:       cfg.Redis.Prefix,
			MaxRetries:   cfg.Redis.MaxRetries,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("using redis cache")
		return store, nil
	case config.CacheDriverMemory:
		log.Info().Msg("using in-process cache")
		return cache.NewMemoryStore(cfg.Cache.DefaultTTL, cfg.Cache.CleanupInterval), nil
	}
	return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
}

// NewServices wires the services over the repositories and cache store
func NewServices(cfg *config.Config, repos *repository.Repositories, store cache.Store, m *metrics.Metrics) *Services {
	cacheSvc := appcache.NewService(store, appcache.TTLs{
		Permissions: cfg.Cache.PermissionTTL,
		Settings:    cfg.Cache.SettingTTL,
		License:     cfg.Cache.LicenseTTL,
	}, m)
	auditor := audit.NewService(repos.Audit)
	rbacSvc := rbac.NewService(repos.RBAC, cacheSvc, auditor)
	trialSvc := trial.NewService(repos.Users, cfg.Trial.Duration())
	settingSvc := setting.NewService(repos.Settings, cacheSvc, auditor)
	mailer := email.NewService(email.Config{
		Enabled:  cfg.Mail.Enabled,
		Host:     cfg.Mail.Host,
		Port:     cfg.Mail.Port,
		Username: cfg.Mail.Username,
		Password: cfg.Mail.Password,
		From:     cfg.Mail.From,
	})

	authSvc := auth.NewService(auth.Deps{
		Users:        repos.Users,
		Clinics:      repos.Clinics,
		Roles:        repos.RBAC,
		Registration: repos.Registration,
		JWT: jwtauth.NewJWTService(jwtauth.Config{
			Secret:     cfg.JWT.Secret,
			Issuer:     cfg.JWT.Issuer,
			AccessTTL:  cfg.JWT.AccessTTL,
			RefreshTTL: cfg.JWT.RefreshTTL,
		}),
		Hasher:         security.NewBcryptHasher(bcrypt.DefaultCost),
		Trial:          trialSvc,
		RBAC:           rbacSvc,
		Mailer:         mailer,
		Auditor:        auditor,
		OnboardingPath: cfg.Web.OnboardingPath,
	})

	return &Services{
		Cache:    cacheSvc,
		Audit:    auditor,
		RBAC:     rbacSvc,
		Trial:    trialSvc,
		License:  license.NewService(repos.Licenses, repos.Usage, repos.Users, cacheSvc, auditor, cfg.License.TrialLimits),
		Setting:  settingSvc,
		Auth:     authSvc,
		Clinic:   clinic.NewService(repos.Clinics, repos.RBAC, rbacSvc, auditor),
		Patient:  patient.NewService(repos.Patients, auditor, settingSvc),
		Mailer:   mailer,
		Metrics:  m,
		Store:    store,
		Repos:    repos,
		Config:   cfg,
	}
}
