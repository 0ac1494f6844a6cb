package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nice-Wolf-Studio/TJR-sub002/internal/market"
)

// TestRetryConfig tests retry configuration defaults
func TestRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()
	assert.Equal(t, 3, config.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, config.InitialDelay)
	assert.Equal(t, 5*time.Second, config.MaxDelay)
	assert.Equal(t, 2.0, config.ExponentialBase)
	assert.Equal(t, 100*time.Millisecond, config.Jitter)
}

// TestIsRetryable tests error categorization against the taxonomy
func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{
			name:      "rate limit error",
			err:       market.NewRateLimitError("polygon", 30*time.Second),
			retryable: true,
		},
		{
			name:      "transport error",
			err:       market.NewTransportError("binance", errors.New("connection reset")),
			retryable: true,
		},
		{
			name:      "wrapped transport error",
			err:       fmt.Errorf("fetch failed: %w", market.NewTransportError("binance", errors.New("EOF"))),
			retryable: true,
		},
		{
			name:      "deadline exceeded",
			err:       context.DeadlineExceeded,
			retryable: true,
		},
		{
			name:      "validation error",
			err:       market.NewValidationError(market.CodeInvalidArgs, "unknown timeframe"),
			retryable: false,
		},
		{
			name:      "symbol resolution error",
			err:       market.NewSymbolResolutionError("ESX25", "ESZ25"),
			retryable: false,
		},
		{
			name:      "insufficient bars error",
			err:       market.NewInsufficientBarsError(80, 12),
			retryable: false,
		},
		{
			name:      "cancelled",
			err:       market.NewCancelledError(context.Canceled),
			retryable: false,
		},
		{
			name:      "plain context cancel",
			err:       context.Canceled,
			retryable: false,
		},
		{
			name:      "generic error",
			err:       errors.New("some other error"),
			retryable: false,
		},
		{
			name:      "nil error",
			err:       nil,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsRetryable(tt.err)
			assert.Equal(t, tt.retryable, result, "Error retryability mismatch")
		})
	}
}

// TestWithRetry_Success tests successful operation without retries
func TestWithRetry_Success(t *testing.T) {
	ctx := context.Background()
	config := DefaultRetryConfig()

	attempts := 0
	operation := func() error {
		attempts++
		return nil
	}

	err := WithRetry(ctx, config, operation)
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "Should succeed on first attempt")
}

// TestWithRetry_RetryableErrorEventualSuccess tests retry with eventual success
func TestWithRetry_RetryableErrorEventualSuccess(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{
		MaxAttempts:     4,
		InitialDelay:    10 * time.Millisecond,
		MaxDelay:        100 * time.Millisecond,
		ExponentialBase: 2.0,
	}

	attempts := 0
	operation := func() error {
		attempts++
		if attempts < 3 {
			return market.NewTransportError("polygon", errors.New("connection timeout"))
		}
		return nil
	}

	startTime := time.Now()
	err := WithRetry(ctx, config, operation)
	duration := time.Since(startTime)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts, "Should succeed on third attempt")
	// Should have backoff delays: 10ms + 20ms = 30ms minimum
	assert.Greater(t, duration, 30*time.Millisecond, "Should have backoff delays")
}

// TestWithRetry_NonRetryableError tests immediate failure on non-retryable error
func TestWithRetry_NonRetryableError(t *testing.T) {
	ctx := context.Background()
	config := DefaultRetryConfig()

	attempts := 0
	expectedErr := market.NewValidationError(market.CodeInvalidArgs, "bad query")
	operation := func() error {
		attempts++
		return expectedErr
	}

	err := WithRetry(ctx, config, operation)
	require.Error(t, err)
	assert.Equal(t, expectedErr, err, "Should return the same error")
	assert.Equal(t, 1, attempts, "Should not retry non-retryable errors")
}

// TestWithRetry_MaxAttemptsExceeded tests failure after all attempts burn out
func TestWithRetry_MaxAttemptsExceeded(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    10 * time.Millisecond,
		MaxDelay:        100 * time.Millisecond,
		ExponentialBase: 2.0,
	}

	attempts := 0
	operation := func() error {
		attempts++
		return market.NewTransportError("polygon", errors.New("connection refused"))
	}

	err := WithRetry(ctx, config, operation)
	require.Error(t, err)
	assert.Equal(t, 3, attempts, "Should attempt exactly MaxAttempts times")
	assert.Contains(t, err.Error(), "operation failed after 3 attempts")
	assert.Equal(t, market.KindProviderTransport, market.KindOf(err), "Wrapped error should keep its kind")
}

// TestWithRetry_ContextCancellation tests cancellation during retry
func TestWithRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := RetryConfig{
		MaxAttempts:     10,
		InitialDelay:    50 * time.Millisecond,
		MaxDelay:        time.Second,
		ExponentialBase: 2.0,
	}

	attempts := 0
	operation := func() error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return market.NewTransportError("polygon", errors.New("flaky"))
	}

	err := WithRetry(ctx, config, operation)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "operation cancelled")
	assert.Equal(t, market.KindCancelled, market.KindOf(err))
	assert.LessOrEqual(t, attempts, 3, "Should stop retrying after context cancellation")
}

// TestWithRetry_RespectsRetryAfter tests that an upstream cooldown overrides
// a shorter computed backoff
func TestWithRetry_RespectsRetryAfter(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{
		MaxAttempts:     2,
		InitialDelay:    time.Millisecond,
		MaxDelay:        time.Second,
		ExponentialBase: 2.0,
	}

	attempts := 0
	operation := func() error {
		attempts++
		if attempts == 1 {
			return market.NewRateLimitError("polygon", 60*time.Millisecond)
		}
		return nil
	}

	startTime := time.Now()
	err := WithRetry(ctx, config, operation)
	duration := time.Since(startTime)

	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Greater(t, duration, 60*time.Millisecond, "Should wait out the provider cooldown")
}

// TestWithRetry_ExponentialBackoff tests backoff duration increases
func TestWithRetry_ExponentialBackoff(t *testing.T) {
	ctx := context.Background()
	config := RetryConfig{
		MaxAttempts:     4,
		InitialDelay:    10 * time.Millisecond,
		MaxDelay:        500 * time.Millisecond,
		ExponentialBase: 2.0,
	}

	attempts := 0
	operation := func() error {
		attempts++
		return market.NewTransportError("polygon", errors.New("timeout"))
	}

	startTime := time.Now()
	err := WithRetry(ctx, config, operation)
	duration := time.Since(startTime)

	require.Error(t, err)
	assert.Equal(t, 4, attempts, "Should attempt 4 times")
	// Expected backoff: 10ms + 20ms + 40ms = 70ms minimum
	assert.Greater(t, duration, 70*time.Millisecond, "Should have exponential backoff")
}

// BenchmarkWithRetry_NoRetries benchmarks the fast path
func BenchmarkWithRetry_NoRetries(b *testing.B) {
	ctx := context.Background()
	config := DefaultRetryConfig()

	operation := func() error {
		return nil
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = WithRetry(ctx, config, operation)
	}
}
