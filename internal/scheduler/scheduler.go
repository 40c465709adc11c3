// Package scheduler drives periodic ingest runs.
package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/skyline-data/air-pollution-ingest/internal/config"
	"github.com/skyline-data/air-pollution-ingest/pkg/logging"
)

// Runner executes one ingest pass over all cities. Satisfied by
// *pipeline.Ingestor.
type Runner interface {
	IngestAll(ctx context.Context, cities []config.City, end time.Time, concurrency int) error
}

// Scheduler runs the ingest pass at a fixed interval. Each run covers the
// window up to the moment the run starts.
type Scheduler struct {
	scheduler   *gocron.Scheduler
	runner      Runner
	cities      []config.City
	interval    time.Duration
	concurrency int

	// runTimeout bounds a single pass. A stuck provider must not let runs
	// pile up behind each other.
	runTimeout time.Duration

	logger zerolog.Logger
}

// New creates a scheduler. The interval must be positive; the run timeout
// defaults to half the interval.
func New(runner Runner, cities []config.City, interval time.Duration, concurrency int) *Scheduler {
	return &Scheduler{
		scheduler:   gocron.NewScheduler(time.UTC),
		runner:      runner,
		cities:      cities,
		interval:    interval,
		concurrency: concurrency,
		runTimeout:  interval / 2,
		logger:      logging.NewLogger("scheduler"),
	}
}

// Start schedules the periodic ingest job, runs it once immediately, and
// starts the scheduler in the background.
func (s *Scheduler) Start() error {
	if len(s.cities) == 0 {
		s.logger.Warn().Msg("No cities configured, nothing to schedule")
		return nil
	}

	s.scheduler.SingletonModeAll()
	_, err := s.scheduler.Every(s.interval).StartImmediately().Do(s.runOnce)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.logger.Info().
		Dur("interval", s.interval).
		Int("cities", len(s.cities)).
		Msg("Scheduler started")
	return nil
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
	defer cancel()

	start := time.Now()
	s.logger.Info().Msg("Ingest pass starting")

	if err := s.runner.IngestAll(ctx, s.cities, start.UTC(), s.concurrency); err != nil {
		s.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Ingest pass finished with errors")
		return
	}
	s.logger.Info().Dur("elapsed", time.Since(start)).Msg("Ingest pass completed")
}
