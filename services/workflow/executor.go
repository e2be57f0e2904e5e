package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Executor owns the activity and workflow registries and drives individual
// runs to a terminal state. It holds no per-run state; concurrent Execute
// calls for different runs are safe.
type Executor struct {
	store  HistoryStore
	clock  Clock
	logger *zap.Logger

	mu         sync.RWMutex
	activities map[string]ActivityFunc
	workflows  map[string]WorkflowFunc
}

func NewExecutor(store HistoryStore, clock Clock, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Executor{
		store:      store,
		clock:      clock,
		logger:     logger.Named("workflow"),
		activities: make(map[string]ActivityFunc),
		workflows:  make(map[string]WorkflowFunc),
	}
}

func (ex *Executor) RegisterActivity(name string, fn ActivityFunc) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.activities[name] = fn
}

func (ex *Executor) RegisterWorkflow(name string, fn WorkflowFunc) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.workflows[name] = fn
}

// Execute runs one workflow to a terminal state. If the run already has
// history (a prior process died mid-run), the body replays over it and
// resumes where it left off.
func (ex *Executor) Execute(ctx context.Context, runID string) error {
	run, err := ex.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	ex.mu.RLock()
	body, ok := ex.workflows[run.Workflow]
	activities := ex.activities
	ex.mu.RUnlock()
	if !ok {
		return fmt.Errorf("workflow %q not registered", run.Workflow)
	}

	history, err := ex.store.LoadEvents(ctx, runID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}

	run.Status = StatusRunning
	run.UpdatedAt = ex.clock.Now()
	if err := ex.store.UpdateRun(ctx, run); err != nil {
		return err
	}

	logger := ex.logger.With(zap.String("workflow_id", run.ID), zap.String("workflow", run.Workflow))
	logger.Info("executing workflow", zap.Int("replayed_events", len(history)))

	wctx := &Context{
		ctx:        ctx,
		run:        run,
		store:      ex.store,
		activities: activities,
		clock:      ex.clock,
		logger:     logger,
		history:    history,
		now:        run.StartedAt,
	}

	result, err := body(wctx, run.Input)

	var abort *AbortError
	switch {
	case err == nil:
		run.Status = StatusCompleted
		run.Result = result
		logger.Info("workflow completed")
	case errors.As(err, &abort):
		run.Status = StatusAborted
		run.Error = abort.Reason
		run.Result, _ = json.Marshal(abort)
		logger.Warn("workflow aborted", zap.String("reason", abort.Reason), zap.Strings("violations", abort.Violations))
	default:
		run.Status = StatusFailed
		run.Error = err.Error()
		logger.Error("workflow failed", zap.Error(err))
	}
	run.UpdatedAt = ex.clock.Now()
	if uerr := ex.store.UpdateRun(ctx, run); uerr != nil {
		return uerr
	}
	if run.Status == StatusFailed {
		return err
	}
	return nil
}
