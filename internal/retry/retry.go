package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// Config bounds the retry loop.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Retrier executes operations with capped exponential backoff.
type Retrier struct {
	cfg       Config
	retryable Classifier
	logger    *slog.Logger
}

// New builds a retrier; classifier nil means never retry, logger may be nil.
func New(cfg Config, classifier Classifier, logger *slog.Logger) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if cfg.BackoffFactor < 1 {
		cfg.BackoffFactor = 2
	}
	return &Retrier{cfg: cfg, retryable: classifier, logger: logger}
}

// Do runs the operation until it succeeds, exhausts attempts, or hits a
// non-retryable error. The backoff wait is cancellable via context.
func (r *Retrier) Do(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		lastErr = operation()
		if lastErr == nil {
			return nil
		}

		retryable := r.retryable != nil && r.retryable(lastErr)
		if attempt == r.cfg.MaxAttempts || !retryable {
			return lastErr
		}

		delay := r.delay(attempt)
		if r.logger != nil {
			r.logger.Warn("retrying after failure",
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}

func (r *Retrier) delay(attempt int) time.Duration {
	d := float64(r.cfg.BaseDelay) * math.Pow(r.cfg.BackoffFactor, float64(attempt-1))
	if d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}
	return time.Duration(d)
}
