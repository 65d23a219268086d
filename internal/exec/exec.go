// Package exec runs agent-proposed shell commands. Every invocation is
// independent: working directory and environment travel with the call, and no
// backend may keep shell state between calls. That contract is what makes the
// local and container backends interchangeable.
package exec

import (
	"context"
	"fmt"
	"time"
)

// Command is one independent execution request.
type Command struct {
	Text    string            // shell command text, run under bash
	WorkDir string            // working directory; empty means process default
	Env     map[string]string // extra environment variables for this call only
	Timeout time.Duration     // wall-clock bound; zero means no bound
}

// ExecutionResult is the observable outcome of running a Command. A non-zero
// exit code is a normal result, not an error.
type ExecutionResult struct {
	ExitCode  int           `json:"exit_code"`
	Output    string        `json:"output"` // merged stdout+stderr, bounded
	Truncated bool          `json:"truncated"`
	TimedOut  bool          `json:"timed_out"`
	Duration  time.Duration `json:"duration"`
}

// Executor runs one command to completion. The error return is reserved for
// mechanism failure (backend unreachable, cannot spawn); command failure is
// reported through ExecutionResult.
type Executor interface {
	Run(ctx context.Context, cmd Command) (ExecutionResult, error)
}

// timeoutExitCode follows the coreutils timeout(1) convention.
const timeoutExitCode = 124

// Options bound executor output.
type Options struct {
	MaxOutputBytes int // truncate merged output beyond this many bytes (default 16 KiB)
}

const defaultMaxOutputBytes = 16 * 1024

func (o Options) maxOutput() int {
	if o.MaxOutputBytes > 0 {
		return o.MaxOutputBytes
	}
	return defaultMaxOutputBytes
}

// truncateOutput bounds output growth so observations stay affordable in
// model context. The marker makes the cut visible to the model.
func truncateOutput(output string, limit int) (string, bool) {
	if len(output) <= limit {
		return output, false
	}
	return output[:limit] + fmt.Sprintf("\n<output truncated: %d of %d bytes shown>", limit, len(output)), true
}
