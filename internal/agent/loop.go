// Package agent drives the model / executor exchange for one task: propose a
// command, run it, fold the result back into the history, repeat until the
// model submits, a budget runs out, or something breaks beyond recovery.
package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mini/internal/errors"
	"mini/internal/exec"
	"mini/internal/llm"
	"mini/internal/logging"
	"mini/internal/observability"
	"mini/internal/prompts"
)

// Agent runs one task to a terminal outcome. It owns the history and the
// budget counters; the model client and executor are collaborators behind
// their interfaces, so backends swap without touching the loop.
type Agent struct {
	config   Config
	client   llm.Client
	executor exec.Executor
	prompts  *prompts.Loader
	usage    *llm.UsageTracker
	logger   logging.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

// Option customizes an Agent at construction time.
type Option func(*Agent)

// WithLogger routes loop diagnostics to the given logger.
func WithLogger(logger logging.Logger) Option {
	return func(a *Agent) { a.logger = logger }
}

// WithUsageTracker shares a tracker with the model client so the loop can
// enforce the cost limit against the client's spend accounting.
func WithUsageTracker(tracker *llm.UsageTracker) Option {
	return func(a *Agent) {
		if tracker != nil {
			a.usage = tracker
		}
	}
}

// WithMetrics enables step, usage and command metrics.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(a *Agent) { a.metrics = metrics }
}

// WithTracer enables span emission for model calls and executions.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Agent) { a.tracer = tracer }
}

// WithPrompts overrides the embedded prompt templates.
func WithPrompts(loader *prompts.Loader) Option {
	return func(a *Agent) { a.prompts = loader }
}

// New builds an Agent for one run. The config is copied and never mutated.
func New(client llm.Client, executor exec.Executor, config Config, opts ...Option) (*Agent, error) {
	a := &Agent{
		config:   config.withDefaults(),
		client:   client,
		executor: executor,
		usage:    llm.NewUsageTracker(),
		logger:   logging.Nop(),
		tracer:   noop.NewTracerProvider().Tracer("mini"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.prompts == nil {
		loader, err := prompts.NewLoader(nil)
		if err != nil {
			return nil, fmt.Errorf("load prompts: %w", err)
		}
		a.prompts = loader
	}
	a.logger = logging.OrNop(a.logger)
	return a, nil
}

// Run executes the loop for the given task description and always returns a
// Result: even on failure or cancellation the partial history is preserved.
func (a *Agent) Run(ctx context.Context, task string) *Result {
	started := time.Now()
	history := &History{}

	outcome, steps := a.run(ctx, task, history, started)

	result := &Result{
		Outcome: outcome,
		History: history.Turns(),
		State: RunState{
			Steps:   steps,
			Cost:    a.usage.Stats().Cost,
			Elapsed: time.Since(started),
		},
		Usage: a.usage.Stats(),
	}
	a.logger.Info("Run finished: outcome=%s steps=%d cost=$%.4f elapsed=%s",
		result.Outcome, result.State.Steps, result.State.Cost, result.State.Elapsed.Round(time.Millisecond))
	return result
}

func (a *Agent) run(ctx context.Context, task string, history *History, started time.Time) (Outcome, int) {
	if err := a.renderOpening(task, history); err != nil {
		return Failed(FailureEnvironment, err.Error()), 0
	}

	steps := 0
	formatErrors := 0

	for {
		if err := ctx.Err(); err != nil {
			return Failed(FailureCancelled, err.Error()), steps
		}
		if outcome, exceeded := a.checkLimits(steps, started); exceeded {
			return outcome, steps
		}

		completion, err := a.complete(ctx, history)
		if err != nil {
			if ctx.Err() != nil {
				return Failed(FailureCancelled, ctx.Err().Error()), steps
			}
			return Failed(FailureModel, errors.Describe(err)), steps
		}
		history.Append(RoleModel, completion.Content)

		action, blocks := ExtractAction(completion.Content)
		if blocks != 1 {
			formatErrors++
			a.logger.Warn("Malformed completion: %d bash blocks (consecutive format errors: %d)", blocks, formatErrors)
			if formatErrors > a.config.FormatErrorRetries {
				return Failed(FailureFormat,
					fmt.Sprintf("no parseable command after %d consecutive attempts", formatErrors)), steps
			}
			corrective, renderErr := a.prompts.Render(prompts.TemplateFormatError, map[string]string{
				"block_count": strconv.Itoa(blocks),
			})
			if renderErr != nil {
				return Failed(FailureEnvironment, renderErr.Error()), steps
			}
			history.Append(RoleObservation, corrective)
			continue
		}
		formatErrors = 0

		if err := ctx.Err(); err != nil {
			return Failed(FailureCancelled, err.Error()), steps
		}

		result, err := a.execute(ctx, action)
		if err != nil {
			if ctx.Err() != nil {
				return Failed(FailureCancelled, ctx.Err().Error()), steps
			}
			return Failed(FailureEnvironment, err.Error()), steps
		}
		steps++
		a.metrics.RecordStep(ctx)
		a.metrics.RecordCommand(ctx, result.ExitCode, result.Duration)

		if payload, submitted := a.detectSubmit(result.Output); submitted {
			return Submitted(payload), steps
		}

		observation, renderErr := a.prompts.Render(prompts.TemplateObservation, map[string]string{
			"exit_code": strconv.Itoa(result.ExitCode),
			"output":    result.Output,
		})
		if renderErr != nil {
			return Failed(FailureEnvironment, renderErr.Error()), steps
		}
		history.Append(RoleObservation, observation)
	}
}

func (a *Agent) renderOpening(task string, history *History) error {
	system, err := a.prompts.Render(prompts.TemplateSystem, nil)
	if err != nil {
		return fmt.Errorf("render system prompt: %w", err)
	}
	instruction, err := a.prompts.Render(prompts.TemplateInstruction, map[string]string{
		"task":          task,
		"working_dir":   a.config.WorkDir,
		"submit_marker": a.config.SubmitMarker,
	})
	if err != nil {
		return fmt.Errorf("render instruction prompt: %w", err)
	}
	history.Append(RoleSystem, system)
	history.Append(RoleInstruction, instruction)
	return nil
}

// checkLimits enforces the run budgets before each model call.
func (a *Agent) checkLimits(steps int, started time.Time) (Outcome, bool) {
	if a.config.MaxSteps > 0 && steps >= a.config.MaxSteps {
		return LimitExceeded(LimitSteps), true
	}
	if a.config.MaxCost > 0 && a.usage.Stats().Cost >= a.config.MaxCost {
		return LimitExceeded(LimitCost), true
	}
	if a.config.MaxTime > 0 && time.Since(started) >= a.config.MaxTime {
		return LimitExceeded(LimitTime), true
	}
	return Outcome{}, false
}

func (a *Agent) complete(ctx context.Context, history *History) (*llm.Completion, error) {
	ctx, span := a.tracer.Start(ctx, "agent.model_call",
		trace.WithAttributes(attribute.Int("history.turns", history.Len())))
	defer span.End()

	completion, err := a.client.Complete(ctx, history.Messages())
	if err != nil {
		return nil, err
	}
	a.metrics.RecordModelUsage(ctx, a.client.Model(),
		completion.Usage.PromptTokens, completion.Usage.CompletionTokens,
		llm.CalculateCost(completion.Usage, a.client.Model()))
	return completion, nil
}

func (a *Agent) execute(ctx context.Context, action string) (exec.ExecutionResult, error) {
	ctx, span := a.tracer.Start(ctx, "agent.execute_command")
	defer span.End()

	return a.executor.Run(ctx, exec.Command{
		Text:    action,
		WorkDir: a.config.WorkDir,
		Env:     a.config.Env,
		Timeout: a.config.CommandTimeout,
	})
}

// detectSubmit checks whether the executed output begins with the submit
// marker. The marker must be the entire first non-blank line; everything
// after it is the submission payload.
func (a *Agent) detectSubmit(output string) (payload string, submitted bool) {
	trimmed := strings.TrimLeft(output, " \t\r\n")
	first, rest, _ := strings.Cut(trimmed, "\n")
	if strings.TrimSpace(first) != a.config.SubmitMarker {
		return "", false
	}
	return strings.TrimSpace(rest), true
}
