package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	osexec "os/exec"
	"strings"
	"time"

	"mini/internal/logging"
)

// DockerExecutor satisfies the same contract as LocalExecutor by shelling out
// to `docker exec` against a long-lived container. The container provides
// filesystem isolation; the executor still keeps no shell state between
// calls.
type DockerExecutor struct {
	container string
	opts      Options
	logger    logging.Logger
}

// NewDockerExecutor targets an already-running container by name or ID.
func NewDockerExecutor(container string, opts Options) *DockerExecutor {
	return &DockerExecutor{
		container: container,
		opts:      opts,
		logger:    logging.NewComponentLogger("exec-docker"),
	}
}

var _ Executor = (*DockerExecutor)(nil)

func (e *DockerExecutor) Run(ctx context.Context, cmd Command) (ExecutionResult, error) {
	if _, err := osexec.LookPath("docker"); err != nil {
		return ExecutionResult{}, fmt.Errorf("docker CLI not found: %w", err)
	}
	if e.container == "" {
		return ExecutionResult{}, fmt.Errorf("docker executor requires a container name")
	}

	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	args := []string{"exec"}
	if cmd.WorkDir != "" {
		args = append(args, "-w", cmd.WorkDir)
	}
	for k, v := range cmd.Env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, e.container, "bash", "-lc", cmd.Text)

	proc := osexec.CommandContext(ctx, "docker", args...)

	var output bytes.Buffer
	proc.Stdout = &output
	proc.Stderr = &output

	start := time.Now()
	runErr := proc.Run()
	duration := time.Since(start)

	result := ExecutionResult{Duration: duration}

	timedOut := ctx.Err() == context.DeadlineExceeded
	switch {
	case timedOut:
		result.TimedOut = true
		result.ExitCode = timeoutExitCode
	case runErr != nil:
		var exitErr *osexec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			if daemonFailure(output.String()) {
				return ExecutionResult{}, fmt.Errorf("docker backend unavailable: %s",
					strings.TrimSpace(output.String()))
			}
		} else {
			return ExecutionResult{}, fmt.Errorf("spawn docker exec: %w", runErr)
		}
	}

	text := output.String()
	if result.TimedOut {
		text += fmt.Sprintf("\n<command timed out after %v>", cmd.Timeout)
	}
	result.Output, result.Truncated = truncateOutput(text, e.opts.maxOutput())

	e.logger.Debug("Docker command finished: container=%s exit=%d timed_out=%v duration=%v",
		e.container, result.ExitCode, result.TimedOut, duration.Round(time.Millisecond))

	return result, nil
}

// daemonFailure distinguishes docker-level breakage from the command's own
// failure; only the former is a mechanism error.
func daemonFailure(output string) bool {
	lower := strings.ToLower(output)
	return strings.Contains(lower, "cannot connect to the docker daemon") ||
		strings.Contains(lower, "no such container") ||
		strings.Contains(lower, "is not running")
}
