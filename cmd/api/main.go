package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/clinic-api/internal/app"
	"github.com/jwalitptl/clinic-api/internal/config"
	audithandler "github.com/jwalitptl/clinic-api/internal/handler/audit"
	authhandler "github.com/jwalitptl/clinic-api/internal/handler/auth"
	clinichandler "github.com/jwalitptl/clinic-api/internal/handler/clinic"
	healthhandler "github.com/jwalitptl/clinic-api/internal/handler/health"
	licensehandler "github.com/jwalitptl/clinic-api/internal/handler/license"
	maintenancehandler "github.com/jwalitptl/clinic-api/internal/handler/maintenance"
	patienthandler "github.com/jwalitptl/clinic-api/internal/handler/patient"
	rbachandler "github.com/jwalitptl/clinic-api/internal/handler/rbac"
	reporthandler "github.com/jwalitptl/clinic-api/internal/handler/report"
	settinghandler "github.com/jwalitptl/clinic-api/internal/handler/setting"
	"github.com/jwalitptl/clinic-api/internal/middleware"
	"github.com/jwalitptl/clinic-api/internal/model"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/internal/router"
	"github.com/jwalitptl/clinic-api/pkg/cache"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := model.ValidateCatalog(); err != nil {
		log.Fatal().Err(err).Msg("invalid permission catalog")
	}

	ctx := context.Background()

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open cache")
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, registry)

	// Initialize services
	svc := app.NewServices(cfg, postgres.NewRepositories(db), store, m)

	if cfg.Seed.OnStartup {
		if err := svc.RBAC.SeedSystemRoles(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to seed system roles")
		}
	}

	// Initialize handlers
	handlers := router.Handlers{
		Auth: authhandler.NewHandler(svc.Auth, authhandler.Config{
			DashboardPath: cfg.Web.DashboardPath,
			SecureCookies: !cfg.IsDevelopment(),
		}),
		License: licensehandler.NewHandler(svc.License, cfg.Web.DashboardPath),
		Clinic:  clinichandler.NewHandler(svc.Clinic),
		Setting: settinghandler.NewHandler(svc.Setting),
		Patient: patienthandler.NewHandler(svc.Patient, svc.RBAC),
		Report:  reporthandler.NewHandler(svc.License, svc.Patient, svc.Setting),
		RBAC:    rbachandler.NewHandler(svc.RBAC),
		Audit:   audithandler.NewHandler(svc.Audit),
		Health: healthhandler.NewHandler(map[string]healthhandler.Check{
			"database": db.PingContext,
			"cache":    cacheCheck(store),
		}, registry),

		Maintenance: maintenancehandler.NewHandler(svc.Cache, svc.Audit),
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.Server.CORSOrigins) > 0 {
		cors.AllowOrigins = cfg.Server.CORSOrigins
	}

	mode := cfg.Server.Mode
	if cfg.IsDevelopment() {
		mode = gin.DebugMode
	}

	// Setup router
	r := router.NewRouter(handlers, router.Checks{
		Auth:        svc.Auth,
		Trial:       svc.Trial,
		License:     svc.License,
		Permissions: svc.RBAC,
	}, store, m, router.RouterConfig{
		Mode:             mode,
		CORS:             cors,
		Security:         middleware.DefaultSecurityConfig(),
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit: middleware.RateLimitConfig{
			Requests: cfg.RateLimit.Requests,
			Window:   cfg.RateLimit.Window,
		},
		GlobalRateLimit: middleware.RateLimiterConfig{
			Rate:  rate.Limit(cfg.RateLimit.GlobalRPS),
			Burst: cfg.RateLimit.GlobalBurst,
		},
		LoginPath:     cfg.Web.LoginPath,
		LicensePath:   cfg.Web.LicensePath,
		MetricsPrefix: cfg.Monitoring.Namespace + "_http",
		Registerer:    registry,
	})
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        r.Engine(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	// Start server
	go func() {
		log.Info().Str("addr", srv.Addr).Str("cache", cfg.Cache.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

// cacheCheck round trips a probe key through the store
func cacheCheck(store cache.Store) healthhandler.Check {
	return func(ctx context.Context) error {
		const key = "health:probe"
		if err := store.Set(ctx, key, time.Now().Unix(), time.Minute); err != nil {
			return err
		}
		var v int64
		return store.Get(ctx, key, &v)
	}
}
