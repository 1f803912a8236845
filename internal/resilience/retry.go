package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// RetryConfig bounds retries of an operation with exponential backoff.
type RetryConfig struct {
	// MaxAttempts counts every try, the first included. 1 disables
	// retries. Default 3.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	// Default 500ms.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts. Default 30s.
	MaxBackoff time.Duration

	// Multiplier grows the delay after each failed attempt. Default 2.
	Multiplier float64

	// JitterFraction spreads each delay by up to that fraction of its
	// length in either direction. Zero means fixed delays.
	// DefaultRetryConfig uses 0.25.
	JitterFraction float64

	// ShouldRetry decides whether an error is retryable. Nil means
	// IsTransient.
	ShouldRetry func(err error) bool

	// OnRetry runs before each backoff sleep with the number of the
	// attempt that just failed.
	OnRetry func(attempt int, err error)
}

// DefaultRetryConfig is the retry policy for calls to external services.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

func (cfg RetryConfig) normalized() RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	return cfg
}

// delay computes the backoff after the given 1-based failed attempt.
func (cfg RetryConfig) delay(attempt int) time.Duration {
	d := float64(cfg.InitialBackoff) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if d > float64(cfg.MaxBackoff) {
		d = float64(cfg.MaxBackoff)
	}
	if cfg.JitterFraction > 0 {
		d *= 1 + cfg.JitterFraction*(2*rand.Float64()-1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// DoVal runs fn until it succeeds, the error is not retryable, the
// attempts are spent, or ctx ends. It returns the value of the
// successful call, or the zero value alongside the last error.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = cfg.normalized()
	retryable := cfg.ShouldRetry
	if retryable == nil {
		retryable = IsTransient
	}

	var zero T
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		lastErr = err

		if ctx.Err() != nil || !retryable(err) || attempt == cfg.MaxAttempts {
			break
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err)
		}
		if !pause(ctx, cfg.delay(attempt)) {
			break
		}
	}
	return zero, lastErr
}

// Do is DoVal for operations with no result.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// pause sleeps for d unless ctx ends first, reporting whether the full
// delay elapsed.
func pause(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// RetryLogger returns an OnRetry hook that logs each retry of the named
// operation through the global logger.
func RetryLogger(source, operation string) func(attempt int, err error) {
	return func(attempt int, err error) {
		zap.L().Warn("retrying after transient failure",
			zap.String("source", source),
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
}
