package agent

import (
	"fmt"
	"time"

	"mini/internal/llm"
)

// TurnRole identifies who produced a history entry.
type TurnRole string

const (
	RoleSystem      TurnRole = "system"
	RoleInstruction TurnRole = "instruction"
	RoleModel       TurnRole = "model"
	RoleObservation TurnRole = "observation"
)

// Turn is one immutable entry in the run history.
type Turn struct {
	Role    TurnRole  `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// History is the ordered, append-only record of a run. It is the complete
// state of the agent: the next model call depends on nothing else.
type History struct {
	turns []Turn
}

// Append adds one turn. Existing turns are never edited or removed.
func (h *History) Append(role TurnRole, content string) {
	h.turns = append(h.turns, Turn{Role: role, Content: content, Time: time.Now()})
}

// Turns returns a copy of the recorded turns.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Len reports the number of recorded turns.
func (h *History) Len() int {
	return len(h.turns)
}

// Messages converts the history into the chat form the model client expects.
// Instruction and observation turns both speak with the user voice.
func (h *History) Messages() []llm.Message {
	messages := make([]llm.Message, 0, len(h.turns))
	for _, turn := range h.turns {
		role := "user"
		switch turn.Role {
		case RoleSystem:
			role = "system"
		case RoleModel:
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	return messages
}

// RunState holds the per-run budget counters. All three only grow.
type RunState struct {
	Steps   int           `json:"steps"`
	Cost    float64       `json:"cost"`
	Elapsed time.Duration `json:"elapsed"`
}

// LimitKind names which budget a run exhausted.
type LimitKind string

const (
	LimitSteps LimitKind = "steps"
	LimitCost  LimitKind = "cost"
	LimitTime  LimitKind = "time"
)

// FailureReason classifies a terminal failure.
type FailureReason string

const (
	FailureFormat      FailureReason = "format_error"
	FailureModel       FailureReason = "model_error"
	FailureEnvironment FailureReason = "environment_error"
	FailureCancelled   FailureReason = "cancelled"
)

// OutcomeKind is the terminal classification of a run.
type OutcomeKind string

const (
	OutcomeSubmitted     OutcomeKind = "submitted"
	OutcomeLimitExceeded OutcomeKind = "limit_exceeded"
	OutcomeFailed        OutcomeKind = "failed"
)

// Outcome is produced exactly once, at loop exit.
type Outcome struct {
	Kind    OutcomeKind   `json:"kind"`
	Payload string        `json:"payload,omitempty"` // submit payload
	Limit   LimitKind     `json:"limit,omitempty"`
	Reason  FailureReason `json:"reason,omitempty"`
	Message string        `json:"message,omitempty"` // human-readable detail
}

// Submitted builds the successful terminal outcome.
func Submitted(payload string) Outcome {
	return Outcome{Kind: OutcomeSubmitted, Payload: payload}
}

// LimitExceeded builds the budget-exhaustion outcome. Distinct from Failed so
// callers can tell "ran out of budget" from "broke".
func LimitExceeded(kind LimitKind) Outcome {
	return Outcome{Kind: OutcomeLimitExceeded, Limit: kind, Message: fmt.Sprintf("%s limit exceeded", kind)}
}

// Failed builds the failure outcome with a diagnostic message.
func Failed(reason FailureReason, message string) Outcome {
	return Outcome{Kind: OutcomeFailed, Reason: reason, Message: message}
}

// String renders the outcome for logs and terminal output.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeSubmitted:
		return "submitted"
	case OutcomeLimitExceeded:
		return fmt.Sprintf("limit exceeded (%s)", o.Limit)
	case OutcomeFailed:
		if o.Message != "" {
			return fmt.Sprintf("failed (%s): %s", o.Reason, o.Message)
		}
		return fmt.Sprintf("failed (%s)", o.Reason)
	}
	return string(o.Kind)
}

// Result is everything a finished run exposes: the terminal outcome, the
// complete ordered history, the final counters and the model spend.
type Result struct {
	Outcome Outcome        `json:"outcome"`
	History []Turn         `json:"history"`
	State   RunState       `json:"state"`
	Usage   llm.UsageStats `json:"usage"`
}
