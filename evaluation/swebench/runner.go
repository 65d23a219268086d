package swebench

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mini/internal/agent"
	"mini/internal/logging"
	"mini/internal/trajectory"
)

// InstanceSolver runs the agent on one instance. Each call owns a fresh
// client, executor and history so instances never share state.
type InstanceSolver interface {
	Solve(ctx context.Context, inst Instance) (*agent.Result, error)
}

// SolverFunc adapts a function to InstanceSolver.
type SolverFunc func(ctx context.Context, inst Instance) (*agent.Result, error)

func (f SolverFunc) Solve(ctx context.Context, inst Instance) (*agent.Result, error) {
	return f(ctx, inst)
}

// Runner executes a batch over a dataset with a bounded worker pool.
type Runner struct {
	config   *BatchConfig
	loader   *DatasetLoader
	solver   InstanceSolver
	model    string
	logger   logging.Logger
	progress *ProgressReporter
}

// NewRunner wires a batch runner. model names the run in predictions output.
func NewRunner(config *BatchConfig, solver InstanceSolver, model string, logger logging.Logger) *Runner {
	logger = logging.OrNop(logger)
	return &Runner{
		config:   config,
		loader:   NewDatasetLoader(logger),
		solver:   solver,
		model:    model,
		logger:   logger,
		progress: NewProgressReporter(os.Stderr),
	}
}

// Run loads the dataset, solves every instance and writes the report plus a
// preds.json compatible with the SWE-bench evaluation harness.
func (r *Runner) Run(ctx context.Context) (*BatchReport, error) {
	instances, err := r.loader.Load(ctx, r.config.Instances)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("no instances selected")
	}
	if err := os.MkdirAll(r.config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	r.logger.Info("Batch start: %d instances, %d workers", len(instances), r.config.NumWorkers)
	report := &BatchReport{Total: len(instances), Started: time.Now()}
	r.progress.Start(len(instances))
	defer r.progress.Stop()

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(r.config.NumWorkers)

	for _, inst := range instances {
		inst := inst
		group.Go(func() error {
			result := r.solveOne(groupCtx, inst)

			mu.Lock()
			report.Results = append(report.Results, result)
			if result.Status == StatusResolvedSubmitted {
				report.Submitted++
			} else {
				report.Failed++
			}
			report.TotalCost += result.Cost
			mu.Unlock()

			r.progress.Record(result)
			if r.config.FailFast && result.Status == StatusError {
				return fmt.Errorf("instance %s: %s", inst.ID, result.Error)
			}
			return nil
		})
	}
	err = group.Wait()
	report.Finished = time.Now()

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].InstanceID < report.Results[j].InstanceID
	})
	if writeErr := r.writeOutputs(report); writeErr != nil && err == nil {
		err = writeErr
	}
	r.logger.Info("Batch done: %d/%d submitted, total cost $%.2f",
		report.Submitted, report.Total, report.TotalCost)
	return report, err
}

func (r *Runner) solveOne(ctx context.Context, inst Instance) InstanceResult {
	started := time.Now()
	r.logger.Info("Instance %s: starting", inst.ID)

	agentResult, err := r.solver.Solve(ctx, inst)
	if err != nil {
		return InstanceResult{
			InstanceID: inst.ID,
			Status:     StatusError,
			Duration:   time.Since(started),
			Error:      err.Error(),
		}
	}

	result := InstanceResult{
		InstanceID: inst.ID,
		Status:     statusForOutcome(agentResult.Outcome),
		Outcome:    agentResult.Outcome,
		Steps:      agentResult.State.Steps,
		Cost:       agentResult.State.Cost,
		Duration:   time.Since(started),
	}
	if agentResult.Outcome.Kind == agent.OutcomeSubmitted {
		result.Patch = agentResult.Outcome.Payload
	}

	tr := trajectory.FromResult(inst.ID, inst.ProblemStatement, r.model, agentResult)
	trajPath := trajectory.DefaultPath(filepath.Join(r.config.OutputDir, "trajectories"), inst.ID)
	if err := tr.Save(trajPath); err != nil {
		r.logger.Warn("Instance %s: trajectory save failed: %v", inst.ID, err)
	}
	return result
}

func (r *Runner) writeOutputs(report *BatchReport) error {
	if err := WritePredictions(filepath.Join(r.config.OutputDir, "preds.json"), r.model, report.Results); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(filepath.Join(r.config.OutputDir, "report.json"), data, 0o644)
}

// ContainerFor resolves the container name for an instance from the batch's
// pattern, following the SWE-bench image naming scheme.
func (c *BatchConfig) ContainerFor(inst Instance) string {
	if c.ContainerPattern == "" {
		return ""
	}
	id := strings.ToLower(strings.ReplaceAll(inst.ID, "__", "_1776_"))
	return strings.ReplaceAll(c.ContainerPattern, "{instance_id}", id)
}
