package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	minierrors "mini/internal/errors"
	"github.com/stretchr/testify/require"
)

type flakyClient struct {
	failures int
	calls    int
	usage    TokenUsage
}

func (m *flakyClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	m.calls++
	if m.calls <= m.failures {
		return nil, NewHTTPStatusError(429, "Too Many Requests", "")
	}
	return &Completion{Content: "done", Usage: m.usage}, nil
}

func (m *flakyClient) Model() string { return "test-model" }

func fastRetry(maxAttempts int) minierrors.RetryConfig {
	return minierrors.RetryConfig{
		MaxAttempts:  maxAttempts,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0,
	}
}

func newTestRetryClient(underlying Client, maxAttempts int, usage *UsageTracker) Client {
	breaker := minierrors.NewCircuitBreaker("test", minierrors.CircuitBreakerConfig{
		FailureThreshold: 100,
		SuccessThreshold: 1,
		Timeout:          time.Millisecond,
	})
	return NewRetryClient(underlying, fastRetry(maxAttempts), breaker, usage)
}

func TestRetryClientRecordsUsageOnceDespiteTransientFailures(t *testing.T) {
	mock := &flakyClient{
		failures: 3,
		usage:    TokenUsage{PromptTokens: 1000, CompletionTokens: 1000, TotalTokens: 2000},
	}
	tracker := NewUsageTracker()
	client := newTestRetryClient(mock, 5, tracker)

	resp, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	require.Equal(t, "done", resp.Content)
	require.Equal(t, 4, mock.calls, "three transient failures then success")

	stats := tracker.Stats()
	require.Equal(t, 1, stats.Calls, "only the successful call is counted")
	require.Equal(t, 1000, stats.PromptTokens)
	require.InDelta(t, CalculateCost(mock.usage, "test-model"), stats.Cost, 1e-9)
}

func TestRetryClientSurfacesPermanentErrorWithoutRetry(t *testing.T) {
	mock := &fatalClient{}
	tracker := NewUsageTracker()
	client := newTestRetryClient(mock, 5, tracker)

	_, err := client.Complete(context.Background(), nil)
	require.Error(t, err)
	require.True(t, minierrors.IsPermanent(err))
	require.Equal(t, 1, mock.calls, "auth errors must not be retried")
	require.Zero(t, tracker.Stats().Calls)
}

type fatalClient struct{ calls int }

func (m *fatalClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	m.calls++
	return nil, NewHTTPStatusError(401, "Unauthorized", "")
}

func (m *fatalClient) Model() string { return "test-model" }

func TestRetryClientExhaustionBecomesPermanent(t *testing.T) {
	mock := &flakyClient{failures: 100}
	client := newTestRetryClient(mock, 2, NewUsageTracker())

	_, err := client.Complete(context.Background(), nil)
	require.Error(t, err)
	require.True(t, minierrors.IsPermanent(err))
	require.Equal(t, 3, mock.calls)
}

func TestClassifyModelError(t *testing.T) {
	require.True(t, minierrors.IsTransient(classifyModelError(errors.New("HTTP 429: Too Many Requests"))))
	require.True(t, minierrors.IsTransient(classifyModelError(errors.New("gateway timeout 504"))))
	require.True(t, minierrors.IsPermanent(classifyModelError(errors.New("HTTP 401: Unauthorized"))))
	require.True(t, minierrors.IsPermanent(classifyModelError(errors.New("maximum context length is 8192 tokens"))))
}
