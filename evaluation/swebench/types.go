// Package swebench runs the agent over SWE-bench instances in batch: load a
// dataset, solve each instance with an isolated agent run, and collect the
// submitted patches into a predictions file.
package swebench

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"mini/internal/agent"
)

// Instance is a single SWE-bench problem.
type Instance struct {
	ID               string `json:"instance_id"`
	Repo             string `json:"repo"`
	BaseCommit       string `json:"base_commit"`
	ProblemStatement string `json:"problem_statement"`
	Hints            string `json:"hints_text,omitempty"`
	Patch            string `json:"patch,omitempty"`
	TestPatch        string `json:"test_patch,omitempty"`
	Version          string `json:"version,omitempty"`
}

// DatasetConfig selects which instances to run.
type DatasetConfig struct {
	Type   string `yaml:"type"`   // "swe_bench" or "file"
	Subset string `yaml:"subset"` // "lite", "full", "verified"
	Split  string `yaml:"split"`  // "dev", "test", "train"

	FilePath string `yaml:"file_path,omitempty"`

	InstanceLimit int      `yaml:"instance_limit,omitempty"`
	InstanceSlice []int    `yaml:"instance_slice,omitempty"` // [start, end)
	InstanceIDs   []string `yaml:"instance_ids,omitempty"`
	Shuffle       bool     `yaml:"shuffle,omitempty"`
}

// BatchConfig drives one evaluation batch.
type BatchConfig struct {
	Instances DatasetConfig `yaml:"instances"`

	NumWorkers int    `yaml:"num_workers,omitempty"`
	OutputDir  string `yaml:"output_dir,omitempty"`
	FailFast   bool   `yaml:"fail_fast,omitempty"`

	// Container image name pattern; {instance_id} is substituted per task.
	ContainerPattern string `yaml:"container_pattern,omitempty"`
}

// LoadBatchConfig reads a batch configuration from a YAML file.
func LoadBatchConfig(path string) (*BatchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch config: %w", err)
	}
	cfg := &BatchConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse batch config %s: %w", path, err)
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "swebench-results"
	}
	return cfg, nil
}

// ResultStatus classifies one instance run.
type ResultStatus string

const (
	StatusResolvedSubmitted ResultStatus = "submitted"
	StatusLimitExceeded     ResultStatus = "limit_exceeded"
	StatusFailed            ResultStatus = "failed"
	StatusError             ResultStatus = "error" // harness-level failure, no run happened
)

// InstanceResult records one instance run for the batch report.
type InstanceResult struct {
	InstanceID string        `json:"instance_id"`
	Status     ResultStatus  `json:"status"`
	Patch      string        `json:"patch,omitempty"`
	Outcome    agent.Outcome `json:"outcome"`
	Steps      int           `json:"steps"`
	Cost       float64       `json:"cost"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// BatchReport summarizes a finished batch.
type BatchReport struct {
	Total     int              `json:"total"`
	Submitted int              `json:"submitted"`
	Failed    int              `json:"failed"`
	TotalCost float64          `json:"total_cost"`
	Started   time.Time        `json:"started"`
	Finished  time.Time        `json:"finished"`
	Results   []InstanceResult `json:"results"`
}

func statusForOutcome(outcome agent.Outcome) ResultStatus {
	switch outcome.Kind {
	case agent.OutcomeSubmitted:
		return StatusResolvedSubmitted
	case agent.OutcomeLimitExceeded:
		return StatusLimitExceeded
	default:
		return StatusFailed
	}
}
