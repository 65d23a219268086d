package llm

import (
	"context"
	"time"
)

// Message is one entry of the conversation sent to the model. The interface
// surface is deliberately plain text: no tool-call protocol, no structured
// content blocks.
type Message struct {
	Role    string `json:"role"` // "system" | "user" | "assistant"
	Content string `json:"content"`
}

// TokenUsage tracks token consumption for one completion.
type TokenUsage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	Estimated        bool `json:"estimated,omitempty"` // true when the provider omitted usage and tokens were counted locally
}

// Completion is the model's response to a message snapshot.
type Completion struct {
	Content string        `json:"content"`
	Usage   TokenUsage    `json:"usage"`
	Latency time.Duration `json:"latency"`
}

// Client represents any model provider speaking plain text completions.
type Client interface {
	// Complete sends the ordered message list and returns one completion.
	Complete(ctx context.Context, messages []Message) (*Completion, error)

	// Model returns the model identifier
	Model() string
}

// Config holds provider settings for one run.
type Config struct {
	Model       string            `yaml:"model"`
	BaseURL     string            `yaml:"base_url"`
	APIKey      string            `yaml:"api_key"`
	Temperature float64           `yaml:"temperature"`
	MaxTokens   int               `yaml:"max_tokens"`
	Timeout     int               `yaml:"timeout"` // seconds, whole HTTP request
	Headers     map[string]string `yaml:"headers"`
}
