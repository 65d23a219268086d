package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	minierrors "mini/internal/errors"
	"mini/internal/logging"
)

// retryClient wraps a model client with retry logic, a circuit breaker, and
// per-run usage accounting.
type retryClient struct {
	underlying     Client
	retryConfig    minierrors.RetryConfig
	circuitBreaker *minierrors.CircuitBreaker
	usage          *UsageTracker
	logger         logging.Logger
}

// NewRetryClient wraps a model client with retry and circuit breaker logic.
// The tracker records exactly one usage increment per successful completion,
// regardless of how many transient attempts preceded it.
func NewRetryClient(client Client, retryConfig minierrors.RetryConfig, circuitBreaker *minierrors.CircuitBreaker, usage *UsageTracker) Client {
	return &retryClient{
		underlying:     client,
		retryConfig:    retryConfig,
		circuitBreaker: circuitBreaker,
		usage:          usage,
		logger:         logging.NewComponentLogger("llm-retry"),
	}
}

// WrapWithRetry wraps an existing client using a dedicated circuit breaker.
func WrapWithRetry(client Client, retryConfig minierrors.RetryConfig, breakerConfig minierrors.CircuitBreakerConfig, usage *UsageTracker) Client {
	circuitBreaker := minierrors.NewCircuitBreaker(
		fmt.Sprintf("llm-%s", client.Model()),
		breakerConfig,
	)
	return NewRetryClient(client, retryConfig, circuitBreaker, usage)
}

func (c *retryClient) Model() string {
	return c.underlying.Model()
}

// Complete executes a model completion with retry logic.
func (c *retryClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	startTime := time.Now()

	resp, err := minierrors.RetryWithResultAndLog(ctx, c.retryConfig, func(ctx context.Context) (*Completion, error) {
		return minierrors.ExecuteFunc(c.circuitBreaker, ctx, func(ctx context.Context) (*Completion, error) {
			completion, err := c.underlying.Complete(ctx, messages)
			if err != nil {
				return nil, classifyModelError(err)
			}
			return completion, nil
		})
	}, c.logger)

	duration := time.Since(startTime)

	if err != nil {
		c.logger.Warn("Model request failed after retries (took %v): %v", duration, err)
		return nil, err
	}

	if c.usage != nil {
		c.usage.Record(resp.Usage, c.underlying.Model())
	}

	if duration > 5*time.Second {
		c.logger.Debug("Model request succeeded after %v", duration)
	}

	return resp, nil
}

// classifyModelError sorts provider errors into transient and permanent
// buckets for the retry policy.
func classifyModelError(err error) error {
	if err == nil {
		return nil
	}

	lowerErr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lowerErr, "429") || strings.Contains(lowerErr, "rate limit"):
		return minierrors.NewTransientError(err,
			"API rate limit reached. Retrying with exponential backoff.")
	case strings.Contains(lowerErr, "500") || strings.Contains(lowerErr, "internal server error"):
		return minierrors.NewTransientError(err,
			"Server error (500). Retrying request.")
	case strings.Contains(lowerErr, "502") || strings.Contains(lowerErr, "bad gateway"):
		return minierrors.NewTransientError(err,
			"Bad gateway (502). Retrying request.")
	case strings.Contains(lowerErr, "503") || strings.Contains(lowerErr, "service unavailable"):
		return minierrors.NewTransientError(err,
			"Service unavailable (503). Retrying request.")
	case strings.Contains(lowerErr, "504") || strings.Contains(lowerErr, "gateway timeout"):
		return minierrors.NewTransientError(err,
			"Gateway timeout (504). Retrying request.")
	case strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded"):
		return minierrors.NewTransientError(err,
			"Request timed out. Retrying with backoff.")
	case strings.Contains(lowerErr, "connection refused") ||
		strings.Contains(lowerErr, "connection reset") ||
		strings.Contains(lowerErr, "broken pipe"):
		return minierrors.NewTransientError(err,
			"Connection failure. Retrying request.")
	case strings.Contains(lowerErr, "context length") || strings.Contains(lowerErr, "maximum context"):
		return minierrors.NewPermanentError(err,
			"Context length exceeded. The conversation no longer fits the model's window.")
	case strings.Contains(lowerErr, "401") || strings.Contains(lowerErr, "unauthorized"):
		return minierrors.NewPermanentError(err,
			"Authentication failed. Please check your API key configuration.")
	case strings.Contains(lowerErr, "403") || strings.Contains(lowerErr, "forbidden"):
		return minierrors.NewPermanentError(err,
			"Permission denied. You don't have access to this model.")
	case strings.Contains(lowerErr, "404") || strings.Contains(lowerErr, "not found"):
		return minierrors.NewPermanentError(err,
			"Model or endpoint not found. Please verify the model name.")
	case strings.Contains(lowerErr, "400") || strings.Contains(lowerErr, "bad request"):
		return minierrors.NewPermanentError(err,
			"Invalid request. Please check the parameters.")
	}

	// Unrecognized errors fall through to the generic IsTransient rules.
	return err
}
