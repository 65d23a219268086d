package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	osexec "os/exec"
	"time"

	"mini/internal/logging"
)

// LocalExecutor runs each command as a fresh bash subprocess on the host.
type LocalExecutor struct {
	opts   Options
	logger logging.Logger
}

// NewLocalExecutor creates a host-process executor.
func NewLocalExecutor(opts Options) *LocalExecutor {
	return &LocalExecutor{
		opts:   opts,
		logger: logging.NewComponentLogger("exec-local"),
	}
}

var _ Executor = (*LocalExecutor)(nil)

// Run executes cmd.Text under bash. The command is written to a temp script
// so multi-line completions and heredocs behave exactly as typed.
func (e *LocalExecutor) Run(ctx context.Context, cmd Command) (ExecutionResult, error) {
	script, err := os.CreateTemp("", "mini-cmd-*.sh")
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("create command script: %w", err)
	}
	defer func() { _ = os.Remove(script.Name()) }()

	if _, err := script.WriteString(cmd.Text); err != nil {
		_ = script.Close()
		return ExecutionResult{}, fmt.Errorf("write command script: %w", err)
	}
	if err := script.Close(); err != nil {
		return ExecutionResult{}, fmt.Errorf("close command script: %w", err)
	}
	if err := os.Chmod(script.Name(), 0o755); err != nil {
		return ExecutionResult{}, fmt.Errorf("chmod command script: %w", err)
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	proc := osexec.CommandContext(ctx, "bash", script.Name())
	if cmd.WorkDir != "" {
		proc.Dir = cmd.WorkDir
	}
	proc.Env = mergedEnv(cmd.Env)

	// One buffer for both streams: os/exec passes the same fd to the child,
	// so interleaving is handled by the OS and writes stay race-free.
	var output bytes.Buffer
	proc.Stdout = &output
	proc.Stderr = &output

	start := time.Now()
	runErr := proc.Run()
	duration := time.Since(start)

	result := ExecutionResult{
		ExitCode: 0,
		Duration: duration,
	}

	timedOut := ctx.Err() == context.DeadlineExceeded
	switch {
	case timedOut:
		result.TimedOut = true
		result.ExitCode = timeoutExitCode
	case runErr != nil:
		var exitErr *osexec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// bash missing, workdir gone: the mechanism itself is broken
			return ExecutionResult{}, fmt.Errorf("spawn command: %w", runErr)
		}
	}

	text := output.String()
	if result.TimedOut {
		text += fmt.Sprintf("\n<command timed out after %v>", cmd.Timeout)
	}
	result.Output, result.Truncated = truncateOutput(text, e.opts.maxOutput())

	e.logger.Debug("Command finished: exit=%d timed_out=%v duration=%v output_bytes=%d",
		result.ExitCode, result.TimedOut, duration.Round(time.Millisecond), len(text))

	return result, nil
}

// mergedEnv layers per-call variables over the process environment. The
// process environment is the documented baseline; anything beyond it must
// arrive through Command.Env.
func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
