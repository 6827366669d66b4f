package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/internal/app"
	"github.com/jwalitptl/clinic-api/internal/config"
	"github.com/jwalitptl/clinic-api/internal/repository/postgres"
	"github.com/jwalitptl/clinic-api/internal/worker"
	"github.com/jwalitptl/clinic-api/pkg/logger"
	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

const jobTimeout = 10 * time.Minute

func setupHealthCheck(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
		}
	}()
	return srv
}

func main() {
	runOnce := flag.Bool("run-once", false, "run every job once and exit")
	healthAddr := flag.String("health-addr", ":8081", "listen address of the health endpoints")
	flag.Parse()

	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger.Setup(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	wlog := logger.WithComponent("worker")

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		wlog.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := app.OpenStore(ctx, cfg)
	if err != nil {
		wlog.Fatal().Err(err).Msg("failed to open cache")
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics(cfg.Monitoring.Namespace, registry)
	svc := app.NewServices(cfg, postgres.NewRepositories(db), store, m)

	jobs := []struct {
		spec string
		job  worker.Job
	}{
		{cfg.Scheduler.LicenseExpirySpec, worker.NewLicenseExpiryJob(svc.License)},
		{cfg.Scheduler.TrialReminderSpec, worker.NewTrialReminderJob(svc.Trial, svc.Mailer, cfg.Scheduler.ReminderDays)},
		{cfg.Scheduler.AuditCleanupSpec, worker.NewAuditCleanupJob(svc.Audit, cfg.Scheduler.AuditRetention)},
	}

	scheduler := worker.NewScheduler(m, jobTimeout)

	if *runOnce {
		failed := false
		for _, j := range jobs {
			if err := scheduler.RunNow(ctx, j.job); err != nil {
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	for _, j := range jobs {
		if err := scheduler.Add(j.spec, j.job); err != nil {
			wlog.Fatal().Err(err).Str("job", j.job.Name()).Msg("failed to schedule job")
		}
	}

	health := setupHealthCheck(*healthAddr, registry)
	scheduler.Start()
	wlog.Info().Int("jobs", len(jobs)).Msg("worker started")

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	wlog.Info().Msg("shutting down...")

	cancel()
	select {
	case <-scheduler.Stop().Done():
	case <-time.After(cfg.Server.ShutdownTimeout):
		wlog.Warn().Msg("jobs still running at shutdown")
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer done()
	_ = health.Shutdown(shutdownCtx)
}
