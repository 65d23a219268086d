package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// ModelPricing holds pricing information per 1K tokens
type ModelPricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// GetModelPricing returns pricing for a given model
func GetModelPricing(model string) ModelPricing {
	pricingMap := map[string]ModelPricing{
		"gpt-4o":                      {InputPer1K: 0.005, OutputPer1K: 0.015},
		"gpt-4o-mini":                 {InputPer1K: 0.00015, OutputPer1K: 0.0006},
		"gpt-4.1":                     {InputPer1K: 0.002, OutputPer1K: 0.008},
		"deepseek-chat":               {InputPer1K: 0.00014, OutputPer1K: 0.00028},
		"deepseek-reasoner":           {InputPer1K: 0.00055, OutputPer1K: 0.00219},
		"anthropic/claude-sonnet-4":   {InputPer1K: 0.003, OutputPer1K: 0.015},
		"anthropic/claude-3-5-sonnet": {InputPer1K: 0.003, OutputPer1K: 0.015},
		"anthropic/claude-3-opus":     {InputPer1K: 0.015, OutputPer1K: 0.075},
	}

	if pricing, ok := pricingMap[model]; ok {
		return pricing
	}

	// Default pricing for unknown models
	return ModelPricing{InputPer1K: 0.001, OutputPer1K: 0.002}
}

// CalculateCost calculates cost based on token usage and model
func CalculateCost(usage TokenUsage, model string) float64 {
	pricing := GetModelPricing(model)
	inputCost := float64(usage.PromptTokens) / 1000.0 * pricing.InputPer1K
	outputCost := float64(usage.CompletionTokens) / 1000.0 * pricing.OutputPer1K
	return inputCost + outputCost
}

// UsageStats is a point-in-time snapshot of a tracker.
type UsageStats struct {
	Calls            int     `json:"calls"`
	Cost             float64 `json:"cost"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
}

// UsageTracker accumulates cost and call counts for exactly one run. Counters
// only move forward, and only for successful completions, so a failed retry
// cycle never shows up in the budget.
type UsageTracker struct {
	mu    sync.Mutex
	stats UsageStats
}

// NewUsageTracker creates an empty per-run tracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{}
}

// Record adds one successful completion to the running totals.
func (t *UsageTracker) Record(usage TokenUsage, model string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stats.Calls++
	t.stats.PromptTokens += usage.PromptTokens
	t.stats.CompletionTokens += usage.CompletionTokens
	t.stats.Cost += CalculateCost(usage, model)
}

// Stats returns a snapshot of the accumulated usage.
func (t *UsageTracker) Stats() UsageStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// estimateUsage counts tokens locally with tiktoken when the provider omitted
// usage data. The cl100k_base encoding is a close enough approximation across
// providers for budget enforcement.
func estimateUsage(messages []Message, completion string, model string) TokenUsage {
	_ = model

	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})

	usage := TokenUsage{Estimated: true}
	if encoding == nil {
		// tiktoken data unavailable: fall back to the bytes/4 heuristic
		for _, msg := range messages {
			usage.PromptTokens += len(msg.Content) / 4
		}
		usage.CompletionTokens = len(completion) / 4
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		return usage
	}

	for _, msg := range messages {
		usage.PromptTokens += len(encoding.Encode(msg.Content, nil, nil))
	}
	usage.CompletionTokens = len(encoding.Encode(completion, nil, nil))
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	return usage
}
