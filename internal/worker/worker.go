// Package worker holds the scheduled maintenance jobs run by cmd/worker
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/clinic-api/pkg/metrics"
)

// Job is one unit of scheduled work
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler runs jobs on cron specs. Runs of the same job never overlap.
type Scheduler struct {
	cron    *cron.Cron
	metrics *metrics.Metrics
	timeout time.Duration
}

func NewScheduler(m *metrics.Metrics, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		metrics: m,
		timeout: timeout,
	}
}

// Add schedules job on spec. An empty spec leaves the job disabled.
func (s *Scheduler) Add(spec string, job Job) error {
	if spec == "" {
		log.Info().Str("job", job.Name()).Msg("job disabled")
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() { s.RunNow(context.Background(), job) }); err != nil {
		return fmt.Errorf("failed to schedule %s: %w", job.Name(), err)
	}
	log.Info().Str("job", job.Name()).Str("spec", spec).Msg("job scheduled")
	return nil
}

// RunNow executes job once with the scheduler timeout
func (s *Scheduler) RunNow(ctx context.Context, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(ctx)
	s.metrics.Job(job.Name(), err)

	if err != nil {
		log.Error().Err(err).Str("job", job.Name()).Dur("duration", time.Since(start)).Msg("job failed")
		return err
	}
	log.Info().Str("job", job.Name()).Dur("duration", time.Since(start)).Msg("job completed")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context done when running jobs finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
