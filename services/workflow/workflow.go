// Package workflow implements a durable, replayable orchestration runtime.
// A workflow body is a deterministic function driven by a Context; every
// activity completion and timer firing is appended to an append-only history
// log. Re-executing a body over existing history consumes recorded results
// instead of re-running activities, which is how a run survives process
// restarts.
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusAborted   Status = "aborted"
	StatusFailed    Status = "failed"
)

// Run is the durable record of one workflow invocation.
type Run struct {
	ID        string          `json:"id"`
	Workflow  string          `json:"workflow"`
	Input     json.RawMessage `json:"input"`
	Status    Status          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RetryPolicy is declared per activity call. The runtime never adds implicit
// retries beyond it, so retry budgets stay auditable per activity type.
type RetryPolicy struct {
	MaxAttempts         int
	StartToCloseTimeout time.Duration
	RetryInterval       time.Duration
}

type EventType string

const (
	EventActivityCompleted EventType = "activity_completed"
	EventTimerFired        EventType = "timer_fired"
)

// HistoryEvent is one recorded step of a workflow run.
type HistoryEvent struct {
	WorkflowID string          `json:"workflow_id"`
	Seq        int             `json:"seq"`
	Type       EventType       `json:"type"`
	Name       string          `json:"name"`
	Attempts   int             `json:"attempts"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// AbortError signals a business-rule abort: the run terminates in the
// distinct "aborted" state rather than "failed". Used by the rebalancing
// workflow when the pre-trade risk assessment reports violations.
type AbortError struct {
	Reason     string   `json:"reason"`
	Violations []string `json:"violations,omitempty"`
}

func (e *AbortError) Error() string {
	if len(e.Violations) == 0 {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, strings.Join(e.Violations, "; "))
}

// Abort builds an AbortError.
func Abort(reason string, violations []string) *AbortError {
	return &AbortError{Reason: reason, Violations: violations}
}

// Unmarshal decodes an activity payload into out.
func Unmarshal(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}
