// Package trajectory persists finished runs as JSON files for later
// inspection and for SWE-bench prediction harvesting.
package trajectory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mini/internal/agent"
	"mini/internal/llm"
)

// Trajectory is the on-disk record of one run.
type Trajectory struct {
	RunID    string         `json:"run_id"`
	Task     string         `json:"task"`
	Model    string         `json:"model"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished"`
	Outcome  agent.Outcome  `json:"outcome"`
	History  []agent.Turn   `json:"history"`
	State    agent.RunState `json:"state"`
	Usage    llm.UsageStats `json:"usage"`
}

// FromResult builds a trajectory from a finished run.
func FromResult(runID, task, model string, result *agent.Result) *Trajectory {
	finished := time.Now()
	return &Trajectory{
		RunID:    runID,
		Task:     task,
		Model:    model,
		Started:  finished.Add(-result.State.Elapsed),
		Finished: finished,
		Outcome:  result.Outcome,
		History:  result.History,
		State:    result.State,
		Usage:    result.Usage,
	}
}

// Save writes the trajectory to path, creating parent directories as needed.
func (tr *Trajectory) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create trajectory dir: %w", err)
	}
	data, err := json.MarshalIndent(tr, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trajectory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write trajectory: %w", err)
	}
	return nil
}

// Load reads a trajectory back from disk.
func Load(path string) (*Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trajectory: %w", err)
	}
	var tr Trajectory
	if err := json.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("parse trajectory %s: %w", path, err)
	}
	return &tr, nil
}

// DefaultPath places trajectories under dir as <run_id>.traj.json.
func DefaultPath(dir, runID string) string {
	return filepath.Join(dir, runID+".traj.json")
}
