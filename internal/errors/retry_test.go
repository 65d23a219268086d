package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRetryConfig(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  maxAttempts,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestRetryWithResultSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	result, err := RetryWithResult(context.Background(), fastRetryConfig(5), func(ctx context.Context) (string, error) {
		calls++
		if calls < 4 {
			return "", NewTransientError(errors.New("rate limited"), "rate limited")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	require.Equal(t, "ok", result)
	require.Equal(t, 4, calls)
}

func TestRetryWithResultStopsOnPermanentError(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(5), func(ctx context.Context) (string, error) {
		calls++
		return "", NewPermanentError(errors.New("bad key"), "authentication failed")
	})

	require.Error(t, err)
	require.Equal(t, 1, calls)
	require.True(t, IsPermanent(err))
}

func TestRetryWithResultExhaustionBecomesPermanent(t *testing.T) {
	calls := 0
	_, err := RetryWithResult(context.Background(), fastRetryConfig(2), func(ctx context.Context) (string, error) {
		calls++
		return "", NewTransientError(errors.New("503"), "service unavailable")
	})

	require.Error(t, err)
	require.Equal(t, 3, calls)
	require.True(t, IsPermanent(err), "exhausted retries must surface as non-retryable")
	require.False(t, IsTransient(err))
}

func TestRetryWithResultHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RetryWithResult(ctx, fastRetryConfig(3), func(ctx context.Context) (string, error) {
		t.Fatal("fn must not run after cancellation")
		return "", nil
	})
	require.Error(t, err)
}

func TestIsTransientClassification(t *testing.T) {
	require.True(t, IsTransient(NewTransientError(errors.New("x"), "")))
	require.False(t, IsTransient(NewPermanentError(errors.New("x"), "")))
	require.True(t, IsTransient(errors.New("dial tcp: connection refused")))
	require.False(t, IsTransient(errors.New("some unclassified failure")))
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
	})

	failing := func(ctx context.Context) (int, error) { return 0, errors.New("boom") }

	_, _ = ExecuteFunc(cb, context.Background(), failing)
	_, _ = ExecuteFunc(cb, context.Background(), failing)
	require.Equal(t, StateOpen, cb.State())

	_, err := ExecuteFunc(cb, context.Background(), func(ctx context.Context) (int, error) {
		t.Fatal("open breaker must not execute")
		return 0, nil
	})
	require.True(t, IsPermanent(err))
}

func TestCircuitBreakerRecoversThroughHalfOpen(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 1,
		Timeout:          time.Millisecond,
	})

	_, _ = ExecuteFunc(cb, context.Background(), func(ctx context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(5 * time.Millisecond)

	result, err := ExecuteFunc(cb, context.Background(), func(ctx context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, result)
	require.Equal(t, StateClosed, cb.State())
}
