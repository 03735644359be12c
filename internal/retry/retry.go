// Package retry provides exponential backoff and a retry wrapper for
// network-bound operations such as provider fetches.
package retry

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Config controls how an operation is retried.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	BackoffFactor float64
	Jitter        bool
	// Retryable reports whether an error should trigger another attempt.
	// A nil predicate treats every error as retryable.
	Retryable func(error) bool
	Logger    *slog.Logger
}

// DefaultConfig returns the standard tuning for provider calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Delay computes the backoff delay for a 1-based attempt number:
// initialDelay * backoffFactor^(attempt-1), plus up to 500ms of jitter
// when enabled.
func Delay(attempt int, initialDelay time.Duration, backoffFactor float64, jitter bool) time.Duration {
	d := time.Duration(float64(initialDelay) * math.Pow(backoffFactor, float64(attempt-1)))
	if jitter {
		d += rand.N(500 * time.Millisecond)
	}
	return d
}

// Sleep blocks for the backoff delay of the given attempt and returns the
// duration slept. If the context ends first, it returns the context error
// without finishing the wait.
func Sleep(ctx context.Context, attempt int, initialDelay time.Duration, backoffFactor float64, jitter bool) (time.Duration, error) {
	d := Delay(attempt, initialDelay, backoffFactor, jitter)
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(d):
		return d, nil
	}
}

// Do runs fn up to cfg.MaxAttempts times, sleeping with exponential backoff
// between attempts. The final attempt's error is returned unchanged and is
// never followed by a sleep. A non-retryable error returns immediately.
// Cancellation during a backoff sleep returns the context error.
func Do(ctx context.Context, cfg Config, op string, fn func(ctx context.Context) error) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(lastErr) {
			return lastErr
		}

		logger.Warn("attempt failed",
			"operation", op,
			"attempt", attempt,
			"max_attempts", cfg.MaxAttempts,
			"error", lastErr)

		if attempt == cfg.MaxAttempts {
			break
		}

		slept, err := Sleep(ctx, attempt, cfg.InitialDelay, cfg.BackoffFactor, cfg.Jitter)
		if err != nil {
			return err
		}
		logger.Debug("retrying", "operation", op, "slept", slept)
	}

	logger.Error("all attempts failed",
		"operation", op,
		"max_attempts", cfg.MaxAttempts,
		"error", lastErr)
	return lastErr
}
