package errors

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	// Given an operation that fails twice with a retryable error
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		if attempts < 3 {
			return ProviderUnavailable("ollama", nil)
		}
		return nil
	})

	// Then the third attempt succeeds
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_StopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return InvalidInput("bad request")
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, CodeInvalidInput, GetCode(err))
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastRetryConfig(), func() error {
		attempts++
		return RateLimited("openai", nil)
	})

	require.Error(t, err)
	// First attempt plus MaxRetries
	assert.Equal(t, 4, attempts)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, ProviderUnavailable("voyage", nil)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRetry_ContextCancellationStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	cfg := fastRetryConfig()
	cfg.InitialDelay = time.Hour

	errCh := make(chan error, 1)
	go func() {
		errCh <- Retry(ctx, cfg, func() error {
			attempts++
			return ProviderUnavailable("ollama", nil)
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Equal(t, 1, attempts)
	case <-time.After(time.Second):
		t.Fatal("retry did not stop after cancellation")
	}
}
