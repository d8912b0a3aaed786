// Package jobs runs periodic background work on a gocron scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Func is a unit of background work. It receives a context that is cancelled
// when the scheduler stops and carries the job timeout.
type Func func(ctx context.Context) error

// RunRecorder receives the outcome of every run.
type RunRecorder interface {
	RecordJobRun(job string, err error)
}

type Scheduler struct {
	cron     *gocron.Scheduler
	logger   zerolog.Logger
	recorder RunRecorder
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewScheduler(logger zerolog.Logger, recorder RunRecorder) *Scheduler {
	cron := gocron.NewScheduler(time.UTC)
	cron.SingletonModeAll()

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron,
		logger:   logger.With().Str("component", "jobs").Logger(),
		recorder: recorder,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Every registers fn to run every interval. Each run is bounded by the
// interval so a stuck run cannot pile up behind the next one.
func (s *Scheduler) Every(name string, interval time.Duration, fn Func) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	_, err := s.cron.Every(interval).Tag(name).Do(s.run, name, interval, fn)
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) run(name string, timeout time.Duration, fn Func) {
	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	if s.recorder != nil {
		s.recorder.RecordJobRun(name, err)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Dur("duration", time.Since(start)).Msg("job failed")
		return
	}
	s.logger.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("job finished")
}

func (s *Scheduler) Start() {
	s.cron.StartAsync()
	s.logger.Info().Int("jobs", s.cron.Len()).Msg("scheduler started")
}

// Stop cancels running jobs and waits for the scheduler to halt.
func (s *Scheduler) Stop() {
	s.cancel()
	s.cron.Stop()
	s.logger.Info().Msg("scheduler stopped")
}
