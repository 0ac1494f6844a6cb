package provider

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// RetryConfig configures retry behavior for adapter fetches
type RetryConfig struct {
	MaxAttempts     int           // Total attempts, including the first
	InitialDelay    time.Duration // Backoff before the second attempt
	MaxDelay        time.Duration // Backoff ceiling
	ExponentialBase float64       // Multiplier between attempts
	Jitter          time.Duration // Random extra delay, uniform in [0, Jitter)
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        5 * time.Second,
		ExponentialBase: 2.0,
		Jitter:          100 * time.Millisecond,
	}
}

// IsRetryable reports whether another attempt can reasonably succeed.
// Rate limits and transport failures are transient; validation, symbol
// resolution, and insufficient-bars failures will repeat identically, so
// retrying only burns the upstream budget.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	switch market.KindOf(err) {
	case market.KindProviderRateLimit, market.KindProviderTransport:
		return true
	default:
		return false
	}
}

// WithRetry executes an operation with exponential backoff and jitter. When
// the upstream names its own cooldown (rate-limit retryAfter) and it exceeds
// the computed backoff, the cooldown wins.
func WithRetry(ctx context.Context, config RetryConfig, operation func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	backoff := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return market.NewCancelledError(ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Operation succeeded after retry")
			}
			return nil
		}

		lastErr = err

		if !IsRetryable(err) {
			log.Debug().
				Err(err).
				Msg("Error is not retryable, aborting")
			return err
		}

		if attempt == config.MaxAttempts {
			break
		}

		delay := backoff
		if config.Jitter > 0 {
			delay += time.Duration(rand.Int63n(int64(config.Jitter)))
		}
		if retryAfter, ok := market.RetryAfter(err); ok && retryAfter > delay {
			delay = retryAfter
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", config.MaxAttempts).
			Dur("backoff", delay).
			Msg("Operation failed, retrying with backoff")

		select {
		case <-ctx.Done():
			return market.NewCancelledError(ctx.Err())
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * config.ExponentialBase)
		if backoff > config.MaxDelay {
			backoff = config.MaxDelay
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", config.MaxAttempts, lastErr)
}
