// Package resilience retries calls to remote services with exponential
// backoff and classifies which failures are worth retrying.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig is a backoff schedule. Zero fields take the defaults of
// DefaultRetryConfig, except the jitter fields where zero means none.
type RetryConfig struct {
	// MaxAttempts counts the first try; 1 disables retries.
	MaxAttempts    int
	InitialBackoff time.Duration
	// MaxBackoff caps the exponential term before jitter is added.
	MaxBackoff time.Duration
	Multiplier float64

	// JitterFraction spreads the delay by ±fraction of itself.
	JitterFraction float64
	// JitterMax adds uniform noise in [0, JitterMax).
	JitterMax time.Duration

	// ShouldRetry replaces IsTransient.
	ShouldRetry func(err error) bool
	// OnRetry runs before each wait with the 1-based attempt that failed.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep replaces the timer wait; tests record delays with it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig is three attempts from 500ms, doubling, ±25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		JitterFraction: 0.25,
	}
}

// ExponentialWithJitter is the generative API schedule: attempt n (0-based)
// waits base*2^n plus up to jitterMax of uniform noise.
func ExponentialWithJitter(maxAttempts int, base, jitterMax time.Duration) RetryConfig {
	return RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: base,
		MaxBackoff:     base << uint(maxAttempts),
		Multiplier:     2,
		JitterMax:      jitterMax,
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.Multiplier <= 0 {
		c.Multiplier = d.Multiplier
	}
	c.JitterFraction = max(c.JitterFraction, 0)
	c.JitterMax = max(c.JitterMax, 0)
	if c.ShouldRetry == nil {
		c.ShouldRetry = IsTransient
	}
	if c.Sleep == nil {
		c.Sleep = sleep
	}
	return c
}

// backoff is the wait after the 0-based attempt.
func (c RetryConfig) backoff(attempt int) time.Duration {
	d := min(float64(c.InitialBackoff)*math.Pow(c.Multiplier, float64(attempt)), float64(c.MaxBackoff))
	if c.JitterFraction > 0 {
		d += (rand.Float64()*2 - 1) * d * c.JitterFraction
	}
	if c.JitterMax > 0 {
		d += rand.Float64() * float64(c.JitterMax)
	}
	return time.Duration(max(d, 0))
}

// Do runs fn until it succeeds, returns an error ShouldRetry rejects, the
// attempts run out, or ctx is done. The last error is returned as is.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for calls that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()

	var zero T
	for attempt := 0; ; attempt++ {
		val, err := fn(ctx)
		switch {
		case err == nil:
			return val, nil
		case ctx.Err() != nil, !cfg.ShouldRetry(err), attempt+1 >= cfg.MaxAttempts:
			return zero, err
		}

		delay := cfg.backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, delay, err)
		}
		if cfg.Sleep(ctx, delay) != nil {
			return zero, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryLogger returns an OnRetry hook that logs a warning per retry.
func RetryLogger(service, operation string) func(int, time.Duration, error) {
	return func(attempt int, delay time.Duration, err error) {
		zap.L().Warn("retrying operation",
			zap.String("service", service),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
	}
}
