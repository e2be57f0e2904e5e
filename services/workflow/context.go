package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ActivityFunc is a single retryable unit of work.
type ActivityFunc func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// WorkflowFunc is a deterministic workflow body. It must not read the wall
// clock or generate randomness directly; time comes from Context.Now and all
// side effects go through ExecuteActivity.
type WorkflowFunc func(wctx *Context, input json.RawMessage) (json.RawMessage, error)

// Context drives one workflow execution. Suspension points are
// ExecuteActivity and Sleep; both consume recorded history during replay.
type Context struct {
	ctx        context.Context
	run        *Run
	store      HistoryStore
	activities map[string]ActivityFunc
	clock      Clock
	logger     *zap.Logger

	history []HistoryEvent
	cursor  int
	seq     int
	now     time.Time
}

// Now is the workflow clock: the run start time, advanced by recorded events.
// Deterministic under replay.
func (w *Context) Now() time.Time { return w.now }

func (w *Context) WorkflowID() string { return w.run.ID }

func (w *Context) Logger() *zap.Logger { return w.logger }

// ExecuteActivity runs (or replays) one activity. The call site's RetryPolicy
// is the complete retry budget: attempts run with the configured
// start-to-close timeout each, and exhaustion fails the workflow with a
// wrapped error.
func (w *Context) ExecuteActivity(name string, input any, policy RetryPolicy) (json.RawMessage, error) {
	if ev, ok := w.replayNext(EventActivityCompleted, name); ok {
		return ev.Payload, nil
	} else if w.cursor < len(w.history) {
		return nil, w.divergence(EventActivityCompleted, name)
	}

	fn, ok := w.activities[name]
	if !ok {
		return nil, fmt.Errorf("activity %q not registered", name)
	}
	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("encode %s input: %w", name, err)
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	var result json.RawMessage
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		attempts = attempt
		result, lastErr = w.runAttempt(fn, payload, policy.StartToCloseTimeout)
		if lastErr == nil {
			break
		}
		w.logger.Warn("activity attempt failed",
			zap.String("activity", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", policy.MaxAttempts),
			zap.Error(lastErr),
		)
		if attempt < policy.MaxAttempts && policy.RetryInterval > 0 {
			if err := w.clock.Sleep(w.ctx, policy.RetryInterval); err != nil {
				return nil, err
			}
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("activity %s failed after %d attempts: %w", name, attempts, lastErr)
	}

	return result, w.record(HistoryEvent{
		Type:     EventActivityCompleted,
		Name:     name,
		Attempts: attempts,
		Payload:  result,
	})
}

// Sleep suspends the workflow without blocking the worker on replay. The
// fired timer is recorded so a replayed body skips the wait entirely.
func (w *Context) Sleep(d time.Duration) error {
	if _, ok := w.replayNext(EventTimerFired, "sleep"); ok {
		return nil
	} else if w.cursor < len(w.history) {
		return w.divergence(EventTimerFired, "sleep")
	}
	if err := w.clock.Sleep(w.ctx, d); err != nil {
		return err
	}
	return w.record(HistoryEvent{Type: EventTimerFired, Name: "sleep"})
}

func (w *Context) runAttempt(fn ActivityFunc, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	ctx := w.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx, payload)
}

// replayNext consumes the next history event when it matches.
func (w *Context) replayNext(typ EventType, name string) (HistoryEvent, bool) {
	if w.cursor >= len(w.history) {
		return HistoryEvent{}, false
	}
	ev := w.history[w.cursor]
	if ev.Type != typ || ev.Name != name {
		return HistoryEvent{}, false
	}
	w.cursor++
	w.seq = ev.Seq + 1
	w.now = ev.RecordedAt
	return ev, true
}

func (w *Context) divergence(typ EventType, name string) error {
	ev := w.history[w.cursor]
	return fmt.Errorf("history divergence at seq %d: recorded %s %q, workflow requested %s %q",
		ev.Seq, ev.Type, ev.Name, typ, name)
}

func (w *Context) record(ev HistoryEvent) error {
	ev.WorkflowID = w.run.ID
	ev.Seq = w.seq
	ev.RecordedAt = w.clock.Now()
	if err := w.store.AppendEvent(w.ctx, ev); err != nil {
		return fmt.Errorf("append history event: %w", err)
	}
	w.seq++
	w.now = ev.RecordedAt
	return nil
}
