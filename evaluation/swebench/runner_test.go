package swebench

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"mini/internal/agent"
)

func batchFixture(t *testing.T, instances string) *BatchConfig {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "instances.json")
	require.NoError(t, os.WriteFile(path, []byte(instances), 0o644))
	return &BatchConfig{
		Instances:  DatasetConfig{Type: "file", FilePath: path},
		NumWorkers: 2,
		OutputDir:  filepath.Join(dir, "out"),
	}
}

func TestRunnerCollectsResultsAndWritesPredictions(t *testing.T) {
	cfg := batchFixture(t, `[
		{"instance_id": "repo__a-1", "problem_statement": "one"},
		{"instance_id": "repo__b-2", "problem_statement": "two"}
	]`)

	solver := SolverFunc(func(ctx context.Context, inst Instance) (*agent.Result, error) {
		outcome := agent.Submitted("diff --git a b")
		if inst.ID == "repo__b-2" {
			outcome = agent.LimitExceeded(agent.LimitSteps)
		}
		return &agent.Result{
			Outcome: outcome,
			State:   agent.RunState{Steps: 5, Cost: 0.25},
		}, nil
	})

	runner := NewRunner(cfg, solver, "mini-gpt-4o", nil)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 2, report.Total)
	require.Equal(t, 1, report.Submitted)
	require.Equal(t, 1, report.Failed)
	require.InDelta(t, 0.5, report.TotalCost, 1e-9)

	data, err := os.ReadFile(filepath.Join(cfg.OutputDir, "preds.json"))
	require.NoError(t, err)
	var preds map[string]Prediction
	require.NoError(t, json.Unmarshal(data, &preds))
	require.Len(t, preds, 2)
	require.Equal(t, "diff --git a b", preds["repo__a-1"].ModelPatch)
	require.Empty(t, preds["repo__b-2"].ModelPatch)
	require.Equal(t, "mini-gpt-4o", preds["repo__a-1"].ModelNameOrPath)

	// trajectories are persisted per instance
	_, err = os.Stat(filepath.Join(cfg.OutputDir, "trajectories", "repo__a-1.traj.json"))
	require.NoError(t, err)
}

func TestRunnerRecordsSolverErrors(t *testing.T) {
	cfg := batchFixture(t, `[{"instance_id": "repo__c-3"}]`)

	solver := SolverFunc(func(ctx context.Context, inst Instance) (*agent.Result, error) {
		return nil, fmt.Errorf("container missing")
	})

	runner := NewRunner(cfg, solver, "mini", nil)
	report, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, StatusError, report.Results[0].Status)
	require.Contains(t, report.Results[0].Error, "container missing")
}

func TestRunnerFailFastPropagatesError(t *testing.T) {
	cfg := batchFixture(t, `[{"instance_id": "repo__d-4"}]`)
	cfg.FailFast = true

	solver := SolverFunc(func(ctx context.Context, inst Instance) (*agent.Result, error) {
		return nil, fmt.Errorf("boom")
	})

	runner := NewRunner(cfg, solver, "mini", nil)
	_, err := runner.Run(context.Background())
	require.Error(t, err)
}

func TestRunnerEmptyDataset(t *testing.T) {
	cfg := batchFixture(t, `[]`)
	runner := NewRunner(cfg, SolverFunc(func(ctx context.Context, inst Instance) (*agent.Result, error) {
		return nil, nil
	}), "mini", nil)
	_, err := runner.Run(context.Background())
	require.Error(t, err)
}

func TestLoadBatchConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("instances:\n  type: file\n  file_path: x.json\n"), 0o644))

	cfg, err := LoadBatchConfig(path)
	require.NoError(t, err)
	require.Equal(t, 1, cfg.NumWorkers)
	require.Equal(t, "swebench-results", cfg.OutputDir)
	require.Equal(t, "file", cfg.Instances.Type)
}
