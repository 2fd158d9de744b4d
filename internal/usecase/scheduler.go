package usecase

import (
	"context"
	"log/slog"
	"time"

	"LitMonitor/internal/ports"
)

// Scheduler couples the cron driver with full pipeline runs.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler constructs the scheduling use case.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		driver:   driver,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Start registers the pipeline run as the scheduled job. A failed run is
// logged and the schedule keeps going; the next trigger retries from the
// persisted state.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if err := s.pipeline.ProcessRun(ctx, trigger); err != nil {
			if s.logger != nil {
				s.logger.Error("scheduled run failed", "trigger", trigger.Format(time.RFC3339), "error", err)
			}
		}
	}
	return s.driver.Start(ctx, job)
}

// Stop halts the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Stop(ctx)
}
