package swebench

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

// ProgressReporter prints per-instance results and a running tally to the
// terminal while the batch runs.
type ProgressReporter struct {
	mu       sync.Mutex
	out      io.Writer
	total    int
	done     int
	ok       int
	started  time.Time
	statusOK *color.Color
	statusKO *color.Color
}

func NewProgressReporter(out io.Writer) *ProgressReporter {
	return &ProgressReporter{
		out:      out,
		statusOK: color.New(color.FgGreen),
		statusKO: color.New(color.FgRed),
	}
}

// Start resets the tally for a batch of the given size.
func (pr *ProgressReporter) Start(total int) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.total = total
	pr.done = 0
	pr.ok = 0
	pr.started = time.Now()
}

// Record reports one finished instance.
func (pr *ProgressReporter) Record(result InstanceResult) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	pr.done++
	label := pr.statusKO.Sprint(string(result.Status))
	if result.Status == StatusResolvedSubmitted {
		pr.ok++
		label = pr.statusOK.Sprint(string(result.Status))
	}
	fmt.Fprintf(pr.out, "[%d/%d] %s %s (steps=%d cost=$%.2f %s)\n",
		pr.done, pr.total, result.InstanceID, label,
		result.Steps, result.Cost, result.Duration.Round(time.Second))
}

// Stop prints the final tally.
func (pr *ProgressReporter) Stop() {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	if pr.total == 0 {
		return
	}
	fmt.Fprintf(pr.out, "finished: %d/%d submitted in %s\n",
		pr.ok, pr.total, time.Since(pr.started).Round(time.Second))
}
