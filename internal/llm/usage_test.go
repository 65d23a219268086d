package llm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateCostUsesModelPricing(t *testing.T) {
	usage := TokenUsage{PromptTokens: 2000, CompletionTokens: 1000}

	cost := CalculateCost(usage, "gpt-4o")
	require.InDelta(t, 2*0.005+1*0.015, cost, 1e-9)

	fallback := CalculateCost(usage, "some-unknown-model")
	require.InDelta(t, 2*0.001+1*0.002, fallback, 1e-9)
}

func TestUsageTrackerIsMonotonic(t *testing.T) {
	tracker := NewUsageTracker()

	var lastCost float64
	var lastCalls int
	for i := 0; i < 5; i++ {
		tracker.Record(TokenUsage{PromptTokens: 100, CompletionTokens: 50}, "gpt-4o-mini")
		stats := tracker.Stats()
		require.Greater(t, stats.Cost, lastCost)
		require.Equal(t, lastCalls+1, stats.Calls)
		lastCost = stats.Cost
		lastCalls = stats.Calls
	}

	stats := tracker.Stats()
	require.Equal(t, 500, stats.PromptTokens)
	require.Equal(t, 250, stats.CompletionTokens)
}

func TestEstimateUsageCountsBothSides(t *testing.T) {
	messages := []Message{
		{Role: "system", Content: "You are a software engineer."},
		{Role: "user", Content: "Fix the failing test in pkg/foo."},
	}

	usage := estimateUsage(messages, "I will start by listing the files.", "any-model")
	require.True(t, usage.Estimated)
	require.Greater(t, usage.PromptTokens, 0)
	require.Greater(t, usage.CompletionTokens, 0)
	require.Equal(t, usage.PromptTokens+usage.CompletionTokens, usage.TotalTokens)
}
