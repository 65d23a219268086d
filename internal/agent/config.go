package agent

import "time"

// DefaultSubmitMarker is printed by the model on its own first output line to
// end the run; everything after it becomes the submission payload.
const DefaultSubmitMarker = "COMPLETE_TASK_AND_SUBMIT_FINAL_OUTPUT"

// Config is the immutable per-run configuration. Each run owns its own copy;
// concurrent runs never share one.
type Config struct {
	WorkDir        string            `yaml:"work_dir"`
	Env            map[string]string `yaml:"env"`
	CommandTimeout time.Duration     `yaml:"command_timeout"`

	MaxSteps int           `yaml:"max_steps"` // zero means unlimited
	MaxCost  float64       `yaml:"max_cost"`  // USD; zero means unlimited
	MaxTime  time.Duration `yaml:"max_time"`  // zero means unlimited

	FormatErrorRetries int    `yaml:"format_error_retries"` // consecutive bad completions allowed
	SubmitMarker       string `yaml:"submit_marker"`
}

// DefaultConfig returns the stock run limits.
func DefaultConfig() Config {
	return Config{
		CommandTimeout:     60 * time.Second,
		MaxSteps:           50,
		MaxCost:            3.0,
		FormatErrorRetries: 3,
		SubmitMarker:       DefaultSubmitMarker,
	}
}

// withDefaults fills zero values that must not stay zero.
func (c Config) withDefaults() Config {
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 60 * time.Second
	}
	if c.FormatErrorRetries <= 0 {
		c.FormatErrorRetries = 3
	}
	if c.SubmitMarker == "" {
		c.SubmitMarker = DefaultSubmitMarker
	}
	return c
}
