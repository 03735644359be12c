package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayGrowsExponentially(t *testing.T) {
	assert.Equal(t, time.Second, Delay(1, time.Second, 2.0, false))
	assert.Equal(t, 2*time.Second, Delay(2, time.Second, 2.0, false))
	assert.Equal(t, 4*time.Second, Delay(3, time.Second, 2.0, false))
	assert.Equal(t, 500*time.Millisecond, Delay(1, 500*time.Millisecond, 3.0, false))
	assert.Equal(t, 1500*time.Millisecond, Delay(2, 500*time.Millisecond, 3.0, false))
}

func TestDelayJitterStaysWithinBound(t *testing.T) {
	base := Delay(2, time.Second, 2.0, false)
	for i := 0; i < 100; i++ {
		d := Delay(2, time.Second, 2.0, true)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+500*time.Millisecond)
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2.0}, "fetch", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoStopsRetryingAfterSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 5, InitialDelay: time.Millisecond, BackoffFactor: 2.0}, "fetch", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	wantErr := errors.New("connection refused")
	calls := 0
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2.0}, "fetch", func(ctx context.Context) error {
		calls++
		return wantErr
	})
	assert.Equal(t, 3, calls)
	// The final error comes back unchanged, not wrapped
	assert.Same(t, wantErr, err)
}

func TestDoSleepsBetweenAttemptsOnly(t *testing.T) {
	// Two sleeps for three attempts: base*(1 + factor) with jitter off
	base := 20 * time.Millisecond
	start := time.Now()
	err := Do(context.Background(), Config{MaxAttempts: 3, InitialDelay: base, BackoffFactor: 2.0}, "fetch", func(ctx context.Context) error {
		return errors.New("down")
	})
	elapsed := time.Since(start)
	require.Error(t, err)
	assert.GreaterOrEqual(t, elapsed, 3*base)
	assert.Less(t, elapsed, 10*base)
}

func TestDoNonRetryableReturnsImmediately(t *testing.T) {
	fatal := errors.New("bad symbol")
	calls := 0
	cfg := Config{
		MaxAttempts:   5,
		InitialDelay:  time.Millisecond,
		BackoffFactor: 2.0,
		Retryable:     func(err error) bool { return !errors.Is(err, fatal) },
	}
	err := Do(context.Background(), cfg, "fetch", func(ctx context.Context) error {
		calls++
		return fatal
	})
	assert.Same(t, fatal, err)
	assert.Equal(t, 1, calls)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := Do(ctx, Config{MaxAttempts: 3, InitialDelay: time.Minute, BackoffFactor: 2.0}, "fetch", func(ctx context.Context) error {
		calls++
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 2.0, cfg.BackoffFactor)
	assert.True(t, cfg.Jitter)
	assert.Nil(t, cfg.Retryable)
}
