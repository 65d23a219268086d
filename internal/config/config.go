// Package config loads the layered run configuration: defaults, then the
// config file, then MINI_* environment variables, then CLI flags bound by the
// command layer. The loaded value is immutable; each run receives its own
// copy so concurrent runs never interfere.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"mini/internal/agent"
	"mini/internal/exec"
	"mini/internal/llm"
	"mini/internal/observability"
)

// Config is the full application configuration.
type Config struct {
	Model         ModelConfig         `mapstructure:"model"`
	Agent         AgentConfig         `mapstructure:"agent"`
	Executor      ExecutorConfig      `mapstructure:"executor"`
	Output        OutputConfig        `mapstructure:"output"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// ModelConfig selects and authenticates the language model.
type ModelConfig struct {
	Name        string            `mapstructure:"name"`
	BaseURL     string            `mapstructure:"base_url"`
	APIKey      string            `mapstructure:"api_key"`
	Temperature float64           `mapstructure:"temperature"`
	MaxTokens   int               `mapstructure:"max_tokens"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Headers     map[string]string `mapstructure:"headers"`

	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay  time.Duration `mapstructure:"retry_max_delay"`
}

// AgentConfig bounds a single run.
type AgentConfig struct {
	WorkDir            string            `mapstructure:"work_dir"`
	Env                map[string]string `mapstructure:"env"`
	CommandTimeout     time.Duration     `mapstructure:"command_timeout"`
	MaxSteps           int               `mapstructure:"max_steps"`
	MaxCost            float64           `mapstructure:"max_cost"`
	MaxTime            time.Duration     `mapstructure:"max_time"`
	FormatErrorRetries int               `mapstructure:"format_error_retries"`
	SubmitMarker       string            `mapstructure:"submit_marker"`
}

// ExecutorConfig selects and bounds the command backend.
type ExecutorConfig struct {
	Backend        string `mapstructure:"backend"` // local, docker
	Container      string `mapstructure:"container"`
	MaxOutputBytes int    `mapstructure:"max_output_bytes"`
}

// OutputConfig controls trajectory persistence.
type OutputConfig struct {
	TrajectoryDir string `mapstructure:"trajectory_dir"`
}

// ObservabilityConfig groups metrics and tracing.
type ObservabilityConfig struct {
	Metrics observability.MetricsConfig `mapstructure:"metrics"`
	Tracing observability.TracingConfig `mapstructure:"tracing"`
}

// Load reads configuration from path if given, otherwise ~/.mini/config.yaml
// when present. MINI_* environment variables override file values, for
// example MINI_MODEL_API_KEY overrides model.api_key.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MINI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if home, err := os.UserHomeDir(); err == nil {
		defaultPath := filepath.Join(home, ".mini", "config.yaml")
		if _, statErr := os.Stat(defaultPath); statErr == nil {
			v.SetConfigFile(defaultPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", defaultPath, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Model.Name == "" {
		cfg.Model.Name = "gpt-4o-mini"
	}
	if cfg.Model.Timeout == 0 {
		cfg.Model.Timeout = 120 * time.Second
	}
	if cfg.Model.RetryAttempts == 0 {
		cfg.Model.RetryAttempts = 3
	}
	if cfg.Model.RetryBaseDelay == 0 {
		cfg.Model.RetryBaseDelay = time.Second
	}
	if cfg.Model.RetryMaxDelay == 0 {
		cfg.Model.RetryMaxDelay = 30 * time.Second
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if cfg.Agent.CommandTimeout == 0 {
		cfg.Agent.CommandTimeout = 60 * time.Second
	}
	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 50
	}
	if cfg.Agent.MaxCost == 0 {
		cfg.Agent.MaxCost = 3.0
	}
	if cfg.Agent.FormatErrorRetries == 0 {
		cfg.Agent.FormatErrorRetries = 3
	}
	if cfg.Agent.SubmitMarker == "" {
		cfg.Agent.SubmitMarker = agent.DefaultSubmitMarker
	}

	if cfg.Executor.Backend == "" {
		cfg.Executor.Backend = "local"
	}

	if cfg.Output.TrajectoryDir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Output.TrajectoryDir = filepath.Join(home, ".mini", "trajectories")
		} else {
			cfg.Output.TrajectoryDir = "trajectories"
		}
	}
}

// LLMConfig converts to the model client's own config type.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		Model:       c.Model.Name,
		BaseURL:     c.Model.BaseURL,
		APIKey:      c.Model.APIKey,
		Temperature: c.Model.Temperature,
		MaxTokens:   c.Model.MaxTokens,
		Timeout:     int(c.Model.Timeout / time.Second),
		Headers:     c.Model.Headers,
	}
}

// AgentConfig converts to the loop's own config type.
func (c *Config) AgentConfig() agent.Config {
	return agent.Config{
		WorkDir:            c.Agent.WorkDir,
		Env:                c.Agent.Env,
		CommandTimeout:     c.Agent.CommandTimeout,
		MaxSteps:           c.Agent.MaxSteps,
		MaxCost:            c.Agent.MaxCost,
		MaxTime:            c.Agent.MaxTime,
		FormatErrorRetries: c.Agent.FormatErrorRetries,
		SubmitMarker:       c.Agent.SubmitMarker,
	}
}

// ExecutorOptions converts to the executor's option type.
func (c *Config) ExecutorOptions() exec.Options {
	return exec.Options{MaxOutputBytes: c.Executor.MaxOutputBytes}
}
