// Package scheduler drives scheduled pipeline runs from a cron expression.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"LitMonitor/internal/ports"
)

// CronScheduler fires the registered job per a five-field cron expression,
// evaluated in a fixed timezone. A trigger that arrives while the previous
// run is still in flight is skipped, not queued.
type CronScheduler struct {
	spec   string
	loc    *time.Location
	logger *slog.Logger

	mu      sync.Mutex
	runner  *cron.Cron
	running bool
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler from a cron expression. A nil location
// falls back to UTC.
func NewCronScheduler(spec string, loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &CronScheduler{spec: spec, loc: loc, logger: logger}
}

// Start registers the job and begins the cron loop. Calling Start again
// without an intervening Stop is a no-op. Cancelling ctx halts the loop.
func (c *CronScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runner != nil {
		return nil
	}

	runner := cron.New(cron.WithLocation(c.loc))
	if _, err := runner.AddFunc(c.spec, c.wrap(job)); err != nil {
		return fmt.Errorf("parse cron expression %q: %w", c.spec, err)
	}
	runner.Start()
	c.runner = runner

	go func() {
		<-ctx.Done()
		_ = c.Stop(context.Background())
	}()

	c.info("scheduler started", "spec", c.spec, "timezone", c.loc.String())
	return nil
}

// wrap guards the job so overlapping triggers do not stack.
func (c *CronScheduler) wrap(job func(time.Time)) func() {
	return func() {
		trigger := time.Now().In(c.loc)
		if !c.tryAcquire() {
			c.warn("previous run still in flight, skipping trigger",
				"trigger", trigger.Format(time.RFC3339))
			return
		}
		defer c.release()
		job(trigger)
	}
}

// Stop halts the cron loop and waits for an in-flight run to finish, bounded
// by the context deadline.
func (c *CronScheduler) Stop(ctx context.Context) error {
	c.mu.Lock()
	runner := c.runner
	c.runner = nil
	c.mu.Unlock()
	if runner == nil {
		return nil
	}

	done := runner.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronScheduler) tryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	return true
}

func (c *CronScheduler) release() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *CronScheduler) info(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Info(msg, args...)
	}
}

func (c *CronScheduler) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}
