package worker

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/gwbatch/extrapq/pkg/ledger"
)

// RetryConfig bounds the backoff applied to ledger operations that lose
// the race for the exclusive lock.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialBackoff is the first backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff growth.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the backoff after each attempt.
	BackoffMultiplier float64

	// JitterFraction randomizes each backoff by +/- this fraction.
	JitterFraction float64
}

// DefaultRetryConfig returns the default bounds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		JitterFraction:    0.1,
	}
}

// retryOnLockTimeout runs op, backing off and retrying only while it
// fails with ledger.ErrLockTimeout. The final timeout once attempts are
// exhausted propagates to the caller: a lock that never comes free points
// at a misconfigured filesystem, and retrying forever would hide that.
func retryOnLockTimeout(ctx context.Context, config RetryConfig, op func() error) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil || !errors.Is(lastErr, ledger.ErrLockTimeout) {
			return lastErr
		}
		if attempt >= config.MaxAttempts {
			break
		}

		jitter := time.Duration(float64(backoff) * config.JitterFraction * (rand.Float64()*2 - 1))
		sleep := backoff + jitter
		if sleep < 0 {
			sleep = backoff
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}
	return lastErr
}
