package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"mini/internal/logging"
)

// openaiClient speaks the OpenAI-compatible chat completions API. It is the
// default backend; any endpoint implementing the same wire format (OpenRouter,
// vLLM, llama.cpp server) works unchanged.
type openaiClient struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     logging.Logger
	headers    map[string]string

	temperature float64
	maxTokens   int
}

// NewOpenAIClient constructs a client from the provided configuration.
func NewOpenAIClient(config Config) (Client, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}

	timeout := 120 * time.Second
	if config.Timeout > 0 {
		timeout = time.Duration(config.Timeout) * time.Second
	}

	return &openaiClient{
		model:       config.Model,
		apiKey:      config.APIKey,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logging.NewComponentLogger("llm-openai"),
		headers:     config.Headers,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
	}, nil
}

func (c *openaiClient) Model() string {
	return c.model
}

func (c *openaiClient) Complete(ctx context.Context, messages []Message) (*Completion, error) {
	oaiReq := map[string]any{
		"model":    c.model,
		"messages": messages,
		"stream":   false,
	}
	if c.temperature > 0 {
		oaiReq["temperature"] = c.temperature
	}
	if c.maxTokens > 0 {
		oaiReq["max_tokens"] = c.maxTokens
	}

	body, err := json.Marshal(oaiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/chat/completions"
	c.logger.Debug("=== LLM Request ===")
	c.logger.Debug("URL: POST %s", endpoint)
	c.logger.Debug("Model: %s, messages: %d", c.model, len(messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Debug("HTTP request failed: %v", err)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("=== LLM Response ===")
	c.logger.Debug("Status: %d %s", resp.StatusCode, resp.Status)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("Error response body: %s", string(respBody))
		return nil, NewHTTPStatusError(resp.StatusCode, resp.Status, string(respBody))
	}

	var oaiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
			TotalTokens      int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(respBody, &oaiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(oaiResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response: no choices returned")
	}

	completion := &Completion{
		Content: oaiResp.Choices[0].Message.Content,
		Usage: TokenUsage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
		Latency: time.Since(start),
	}

	// Local endpoints frequently omit usage. Estimate so cost limits still bind.
	if completion.Usage.TotalTokens == 0 {
		completion.Usage = estimateUsage(messages, completion.Content, c.model)
	}

	c.logger.Debug("Content length: %d chars, usage: %d prompt + %d completion tokens (%.1fs)",
		len(completion.Content),
		completion.Usage.PromptTokens,
		completion.Usage.CompletionTokens,
		completion.Latency.Seconds())

	return completion, nil
}

// HTTPStatusError represents an HTTP error with status code
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// HTTPStatusCode exposes the status code for error classification.
func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// NewHTTPStatusError creates an HTTP status error
func NewHTTPStatusError(statusCode int, status, body string) error {
	return &HTTPStatusError{
		StatusCode: statusCode,
		Status:     status,
		Body:       body,
	}
}

var _ interface{ HTTPStatusCode() int } = (*HTTPStatusError)(nil)
