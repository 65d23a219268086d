package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mini/internal/agent"
	"mini/internal/config"
	"mini/internal/errors"
	"mini/internal/exec"
	"mini/internal/llm"
	"mini/internal/logging"
	"mini/internal/observability"
	"mini/internal/trajectory"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

type runFlags struct {
	model    string
	workdir  string
	backend  string
	maxSteps int
	maxCost  float64
	maxTime  time.Duration
	noSave   bool
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [task description]",
		Short: "Run the agent on one task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), strings.Join(args, " "), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "model name")
	cmd.Flags().StringVarP(&flags.workdir, "workdir", "w", "", "working directory for commands")
	cmd.Flags().StringVar(&flags.backend, "backend", "", "execution backend (local, docker)")
	cmd.Flags().IntVar(&flags.maxSteps, "max-steps", 0, "step limit")
	cmd.Flags().Float64Var(&flags.maxCost, "max-cost", 0, "cost limit in USD")
	cmd.Flags().DurationVar(&flags.maxTime, "max-time", 0, "wall-time limit")
	cmd.Flags().BoolVar(&flags.noSave, "no-save", false, "skip trajectory persistence")
	return cmd
}

func runTask(ctx context.Context, task string, flags *runFlags) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyRunFlags(cfg, flags)

	logger := logging.NewComponentLogger("cli")
	runID := uuid.NewString()

	metrics, err := observability.NewMetrics(cfg.Observability.Metrics)
	if err != nil {
		return err
	}
	tracing, err := observability.NewTracerProvider(cfg.Observability.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metrics.Shutdown(shutdownCtx)
		_ = tracing.Shutdown(shutdownCtx)
	}()

	result, err := executeRun(ctx, cfg, task, runID, metrics, tracing, logger, "")
	if err != nil {
		return err
	}

	printOutcome(result)

	if !flags.noSave {
		tr := trajectory.FromResult(runID, task, cfg.Model.Name, result)
		path := trajectory.DefaultPath(cfg.Output.TrajectoryDir, runID)
		if err := tr.Save(path); err != nil {
			return fmt.Errorf("save trajectory: %w", err)
		}
		fmt.Println(gray("trajectory: " + path))
	}
	return nil
}

func applyRunFlags(cfg *config.Config, flags *runFlags) {
	if flags.model != "" {
		cfg.Model.Name = flags.model
	}
	if flags.workdir != "" {
		cfg.Agent.WorkDir = flags.workdir
	}
	if flags.backend != "" {
		cfg.Executor.Backend = flags.backend
	}
	if flags.maxSteps > 0 {
		cfg.Agent.MaxSteps = flags.maxSteps
	}
	if flags.maxCost > 0 {
		cfg.Agent.MaxCost = flags.maxCost
	}
	if flags.maxTime > 0 {
		cfg.Agent.MaxTime = flags.maxTime
	}
}

// buildExecutor selects the command backend. container overrides the
// configured one when non-empty.
func buildExecutor(cfg *config.Config, container string) (exec.Executor, error) {
	switch cfg.Executor.Backend {
	case "local", "":
		return exec.NewLocalExecutor(cfg.ExecutorOptions()), nil
	case "docker":
		if container == "" {
			container = cfg.Executor.Container
		}
		if container == "" {
			return nil, fmt.Errorf("docker backend requires a container name")
		}
		return exec.NewDockerExecutor(container, cfg.ExecutorOptions()), nil
	default:
		return nil, fmt.Errorf("unknown executor backend: %s", cfg.Executor.Backend)
	}
}

// executeRun wires a fresh client, executor and agent for one task and runs
// it to completion. Each call is fully independent.
func executeRun(ctx context.Context, cfg *config.Config, task, runID string,
	metrics *observability.Metrics, tracing *observability.TracerProvider,
	logger logging.Logger, container string) (*agent.Result, error) {

	baseClient, err := llm.NewOpenAIClient(cfg.LLMConfig())
	if err != nil {
		return nil, err
	}
	tracker := llm.NewUsageTracker()
	client := llm.WrapWithRetry(baseClient,
		errors.RetryConfig{
			MaxAttempts:  cfg.Model.RetryAttempts,
			BaseDelay:    cfg.Model.RetryBaseDelay,
			MaxDelay:     cfg.Model.RetryMaxDelay,
			JitterFactor: 0.25,
		},
		errors.DefaultCircuitBreakerConfig(),
		tracker)

	executor, err := buildExecutor(cfg, container)
	if err != nil {
		return nil, err
	}

	runner, err := agent.New(client, executor, cfg.AgentConfig(),
		agent.WithLogger(logger),
		agent.WithUsageTracker(tracker),
		agent.WithMetrics(metrics),
		agent.WithTracer(tracing.Tracer()),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Run %s starting: model=%s backend=%s", runID, cfg.Model.Name, cfg.Executor.Backend)
	return runner.Run(ctx, task), nil
}

func printOutcome(result *agent.Result) {
	switch result.Outcome.Kind {
	case agent.OutcomeSubmitted:
		fmt.Println(green("submitted"))
		if result.Outcome.Payload != "" {
			fmt.Println(result.Outcome.Payload)
		}
	case agent.OutcomeLimitExceeded:
		fmt.Println(yellow(result.Outcome.String()))
	default:
		fmt.Fprintln(os.Stderr, red(result.Outcome.String()))
	}
	fmt.Println(gray(fmt.Sprintf("steps=%d cost=$%.4f elapsed=%s",
		result.State.Steps, result.State.Cost, result.State.Elapsed.Round(time.Millisecond))))
}
