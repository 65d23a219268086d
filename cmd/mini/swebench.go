package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mini/evaluation/swebench"
	"mini/internal/agent"
	"mini/internal/config"
	"mini/internal/logging"
	"mini/internal/observability"
)

func newSWEBenchCommand() *cobra.Command {
	var batchPath string

	cmd := &cobra.Command{
		Use:   "swebench",
		Short: "Run the agent over a SWE-bench dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSWEBench(cmd.Context(), batchPath)
		},
	}
	cmd.Flags().StringVarP(&batchPath, "batch", "b", "", "batch config YAML (required)")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func runSWEBench(ctx context.Context, batchPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	batch, err := swebench.LoadBatchConfig(batchPath)
	if err != nil {
		return err
	}

	logger := logging.NewComponentLogger("swebench")

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

	solver := swebench.SolverFunc(func(ctx context.Context, inst swebench.Instance) (*agent.Result, error) {
		runCfg := *cfg
		if batch.ContainerPattern != "" {
			runCfg.Executor.Backend = "docker"
		}
		return executeRun(ctx, &runCfg, instanceTask(inst), uuid.NewString(),
			metrics, tracing, logger, batch.ContainerFor(inst))
	})

	runner := swebench.NewRunner(batch, solver, cfg.Model.Name, logger)
	report, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("submitted %d/%d, total cost $%.2f, results in %s\n",
		report.Submitted, report.Total, report.TotalCost, batch.OutputDir)
	return nil
}

// instanceTask turns an instance into the task text handed to the agent.
func instanceTask(inst swebench.Instance) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Solve the following issue in the %s repository.\n\n", inst.Repo)
	b.WriteString(inst.ProblemStatement)
	if inst.Hints != "" {
		b.WriteString("\n\nHints:\n")
		b.WriteString(inst.Hints)
	}
	return b.String()
}
