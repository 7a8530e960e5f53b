package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig configures exponential backoff retry. Defaults match
// spec §4.1: 3 attempts, initial 1s, cap 30s, multiplier 2.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryConfig returns the spec-mandated vector backend retry policy.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Retriable is implemented by errors that know whether a retry is
// worthwhile (e.g. a rate-limit error that wants callers to wait until
// Retry-After elapses before the next attempt).
type Retriable interface {
	error
	Retryable() bool
}

// Retry executes fn with exponential backoff, stopping early if fn
// returns an error implementing Retriable with Retryable() == false.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	bo := backoff.NewExponentialBackOff()
	if cfg.InitialDelay > 0 {
		bo.InitialInterval = cfg.InitialDelay
	}
	if cfg.MaxDelay > 0 {
		bo.MaxInterval = cfg.MaxDelay
	}
	if cfg.Multiplier > 0 {
		bo.Multiplier = cfg.Multiplier
	}
	bo.MaxElapsedTime = 0

	withMax := backoff.WithMaxRetries(bo, uint64(cfg.MaxAttempts-1))
	withCtx := backoff.WithContext(withMax, ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if r, ok := err.(Retriable); ok && !r.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, withCtx)
}
