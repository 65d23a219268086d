package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	minierrors "mini/internal/errors"
	"mini/internal/exec"
	"mini/internal/llm"
)

// scriptedClient replays a fixed sequence of completions.
type scriptedClient struct {
	completions []string
	err         error // returned once all completions are consumed
	calls       int
}

func (c *scriptedClient) Complete(ctx context.Context, messages []llm.Message) (*llm.Completion, error) {
	c.calls++
	if len(c.completions) == 0 {
		if c.err != nil {
			return nil, c.err
		}
		return nil, fmt.Errorf("script exhausted after %d calls", c.calls)
	}
	content := c.completions[0]
	c.completions = c.completions[1:]
	return &llm.Completion{
		Content: content,
		Usage:   llm.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}, nil
}

func (c *scriptedClient) Model() string { return "test-model" }

// scriptedExecutor replays execution results and records every command.
type scriptedExecutor struct {
	results  []exec.ExecutionResult
	err      error
	commands []exec.Command
}

func (e *scriptedExecutor) Run(ctx context.Context, cmd exec.Command) (exec.ExecutionResult, error) {
	e.commands = append(e.commands, cmd)
	if e.err != nil {
		return exec.ExecutionResult{}, e.err
	}
	if len(e.results) == 0 {
		return exec.ExecutionResult{ExitCode: 0, Output: ""}, nil
	}
	result := e.results[0]
	e.results = e.results[1:]
	return result, nil
}

func commandCompletion(cmd string) string {
	return "I will run the command now.\n\n```bash\n" + cmd + "\n```\n"
}

func newTestAgent(t *testing.T, client llm.Client, executor exec.Executor, config Config, opts ...Option) *Agent {
	t.Helper()
	a, err := New(client, executor, config, opts...)
	require.NoError(t, err)
	return a
}

func TestRunExecutesCommandAndAppendsObservation(t *testing.T) {
	client := &scriptedClient{completions: []string{
		commandCompletion("echo hello"),
		commandCompletion("echo " + DefaultSubmitMarker),
	}}
	executor := &scriptedExecutor{results: []exec.ExecutionResult{
		{ExitCode: 0, Output: "hello\n"},
		{ExitCode: 0, Output: DefaultSubmitMarker + "\ndone"},
	}}

	agent := newTestAgent(t, client, executor, DefaultConfig())
	result := agent.Run(context.Background(), "say hello")

	require.Equal(t, OutcomeSubmitted, result.Outcome.Kind)
	require.Equal(t, 2, result.State.Steps)
	require.Len(t, executor.commands, 2)
	require.Equal(t, "echo hello", executor.commands[0].Text)

	require.Equal(t, RoleSystem, result.History[0].Role)
	require.Equal(t, RoleInstruction, result.History[1].Role)
	require.Equal(t, RoleModel, result.History[2].Role)
	require.Equal(t, RoleObservation, result.History[3].Role)
	require.Contains(t, result.History[3].Content, "hello")
	require.Contains(t, result.History[3].Content, "0")
}

func TestRunFailsAfterConsecutiveFormatErrors(t *testing.T) {
	client := &scriptedClient{completions: []string{
		"no command here",
		"still no command",
		"```python\nprint(1)\n```",
		"nope",
	}}
	executor := &scriptedExecutor{}

	config := DefaultConfig()
	config.FormatErrorRetries = 3
	agent := newTestAgent(t, client, executor, config)
	result := agent.Run(context.Background(), "task")

	require.Equal(t, OutcomeFailed, result.Outcome.Kind)
	require.Equal(t, FailureFormat, result.Outcome.Reason)
	require.Equal(t, 4, client.calls)
	require.Empty(t, executor.commands)
	require.Zero(t, result.State.Steps)
}

func TestRunRecoversFromFormatErrorOnValidCompletion(t *testing.T) {
	client := &scriptedClient{completions: []string{
		"forgot the block",
		commandCompletion("echo " + DefaultSubmitMarker),
	}}
	executor := &scriptedExecutor{results: []exec.ExecutionResult{
		{ExitCode: 0, Output: DefaultSubmitMarker + "\n"},
	}}

	agent := newTestAgent(t, client, executor, DefaultConfig())
	result := agent.Run(context.Background(), "task")

	require.Equal(t, OutcomeSubmitted, result.Outcome.Kind)
	// corrective observation sits between the two model turns
	require.Equal(t, RoleModel, result.History[2].Role)
	require.Equal(t, RoleObservation, result.History[3].Role)
	require.Equal(t, RoleModel, result.History[4].Role)
}

func TestRunStopsAtStepLimit(t *testing.T) {
	client := &scriptedClient{completions: []string{
		commandCompletion("true"),
		commandCompletion("true"),
		commandCompletion("true"),
	}}
	executor := &scriptedExecutor{}

	config := DefaultConfig()
	config.MaxSteps = 2
	agent := newTestAgent(t, client, executor, config)
	result := agent.Run(context.Background(), "task")

	require.Equal(t, OutcomeLimitExceeded, result.Outcome.Kind)
	require.Equal(t, LimitSteps, result.Outcome.Limit)
	require.Equal(t, 2, result.State.Steps)
	require.Len(t, executor.commands, 2)
}

func TestRunStopsAtCostLimit(t *testing.T) {
	tracker := llm.NewUsageTracker()
	tracker.Record(llm.TokenUsage{PromptTokens: 100000, CompletionTokens: 100000, TotalTokens: 200000}, "gpt-4o")

	client := &scriptedClient{completions: []string{commandCompletion("true")}}
	executor := &scriptedExecutor{}

	config := DefaultConfig()
	config.MaxCost = 0.01
	agent := newTestAgent(t, client, executor, config, WithUsageTracker(tracker))
	result := agent.Run(context.Background(), "task")

	require.Equal(t, OutcomeLimitExceeded, result.Outcome.Kind)
	require.Equal(t, LimitCost, result.Outcome.Limit)
	require.Zero(t, client.calls)
}

func TestRunStopsAtTimeLimit(t *testing.T) {
	client := &scriptedClient{completions: []string{commandCompletion("true")}}
	executor := &scriptedExecutor{}

	config := DefaultConfig()
	config.MaxTime = time.Nanosecond
	agent := newTestAgent(t, client, executor, config)

	time.Sleep(time.Millisecond)
	result := agent.Run(context.Background(), "task")

	require.Equal(t, OutcomeLimitExceeded, result.Outcome.Kind)
	require.Equal(t, LimitTime, result.Outcome.Limit)
}

func TestRunSubmitCarriesPayload(t *testing.T) {
	client := &scriptedClient{completions: []string{
		commandCompletion("echo " + DefaultSubmitMarker + " && git diff"),
	}}
	executor := &scriptedExecutor{results: []exec.ExecutionResult{
		{ExitCode: 0, Output: DefaultSubmitMarker + "\npatch applied"},
	}}

	agent := newTestAgent(t, client, executor, DefaultConfig())
	result := agent.Run(context.Background(), "task")

	require.Equal(t, OutcomeSubmitted, result.Outcome.Kind)
	require.Equal(t, "patch applied", result.Outcome.Payload)
}

func TestRunTreatsTimeoutAsObservation(t *testing.T) {
	client := &scriptedClient{completions: []string{
		commandCompletion("sleep 600"),
		commandCompletion("echo " + DefaultSubmitMarker),
	}}
	executor := &scriptedExecutor{results: []exec.ExecutionResult{
		{ExitCode: 124, Output: "<command timed out after 1m0s>", TimedOut: true},
		{ExitCode: 0, Output: DefaultSubmitMarker + "\n"},
	}}

	agent := newTestAgent(t, client, executor, DefaultConfig())
	result := agent.Run(context.Background(), "task")

	require.Equal(t, OutcomeSubmitted, result.Outcome.Kind)
	require.Equal(t, 2, result.State.Steps)

	var timeoutObserved bool
	for _, turn := range result.History {
		if turn.Role == RoleObservation &&
			strings.Contains(turn.Content, "124") && strings.Contains(turn.Content, "timed out") {
			timeoutObserved = true
		}
	}
	require.True(t, timeoutObserved)
}

func TestRunFailsOnExecutorMechanismError(t *testing.T) {
	client := &scriptedClient{completions: []string{commandCompletion("true")}}
	executor := &scriptedExecutor{err: fmt.Errorf("docker daemon unreachable")}

	agent := newTestAgent(t, client, executor, DefaultConfig())
	result := agent.Run(context.Background(), "task")

	require.Equal(t, OutcomeFailed, result.Outcome.Kind)
	require.Equal(t, FailureEnvironment, result.Outcome.Reason)
	require.Contains(t, result.Outcome.Message, "daemon")
}

func TestRunFailsOnFatalModelError(t *testing.T) {
	client := &scriptedClient{err: minierrors.NewPermanentError(fmt.Errorf("invalid api key"), "authentication failed")}
	executor := &scriptedExecutor{}

	agent := newTestAgent(t, client, executor, DefaultConfig())
	result := agent.Run(context.Background(), "task")

	require.Equal(t, OutcomeFailed, result.Outcome.Kind)
	require.Equal(t, FailureModel, result.Outcome.Reason)
	require.Len(t, result.History, 2) // system + instruction survive for diagnosis
}

func TestRunHonorsCancellation(t *testing.T) {
	client := &scriptedClient{completions: []string{commandCompletion("true")}}
	executor := &scriptedExecutor{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agent := newTestAgent(t, client, executor, DefaultConfig())
	result := agent.Run(ctx, "task")

	require.Equal(t, OutcomeFailed, result.Outcome.Kind)
	require.Equal(t, FailureCancelled, result.Outcome.Reason)
	require.Len(t, result.History, 2)
	require.Zero(t, client.calls)
}

func TestRunPassesConfiguredWorkdirEnvTimeout(t *testing.T) {
	client := &scriptedClient{completions: []string{
		commandCompletion("pwd"),
		commandCompletion("echo " + DefaultSubmitMarker),
	}}
	executor := &scriptedExecutor{results: []exec.ExecutionResult{
		{ExitCode: 0, Output: "/repo\n"},
		{ExitCode: 0, Output: DefaultSubmitMarker + "\n"},
	}}

	config := DefaultConfig()
	config.WorkDir = "/repo"
	config.Env = map[string]string{"PAGER": "cat"}
	config.CommandTimeout = 30 * time.Second
	agent := newTestAgent(t, client, executor, config)
	agent.Run(context.Background(), "task")

	require.Equal(t, "/repo", executor.commands[0].WorkDir)
	require.Equal(t, "cat", executor.commands[0].Env["PAGER"])
	require.Equal(t, 30*time.Second, executor.commands[0].Timeout)
}

func TestHistoryGrowsAppendOnly(t *testing.T) {
	h := &History{}
	h.Append(RoleSystem, "a")
	first := h.Turns()
	h.Append(RoleModel, "b")
	second := h.Turns()

	require.Len(t, first, 1)
	require.Len(t, second, 2)
	require.Equal(t, first[0], second[0])

	// mutating the returned copy must not touch the history
	second[0].Content = "changed"
	require.Equal(t, "a", h.Turns()[0].Content)
}

func TestHistoryMessagesMapRoles(t *testing.T) {
	h := &History{}
	h.Append(RoleSystem, "sys")
	h.Append(RoleInstruction, "do it")
	h.Append(RoleModel, "ok")
	h.Append(RoleObservation, "exit 0")

	messages := h.Messages()
	require.Equal(t, []string{"system", "user", "assistant", "user"},
		[]string{messages[0].Role, messages[1].Role, messages[2].Role, messages[3].Role})
}
