package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"go.uber.org/zap"
)

// Client is the submission-side API: it persists a scheduled run and hands
// the run ID to the worker pool. Callers poll GetStatus for the outcome.
type Client struct {
	store  HistoryStore
	worker *Worker
	clock  Clock
	logger *zap.Logger
}

func NewClient(store HistoryStore, worker *Worker, clock Clock, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &Client{store: store, worker: worker, clock: clock, logger: logger.Named("workflow_client")}
}

func (c *Client) StartBacktest(ctx context.Context, in BacktestWorkflowInput) (string, error) {
	return c.start(ctx, WorkflowStrategyBacktest, in)
}

func (c *Client) StartLiveTrading(ctx context.Context, in LiveTradingInput) (string, error) {
	return c.start(ctx, WorkflowLiveTrading, in)
}

func (c *Client) StartRebalance(ctx context.Context, in RebalanceInput) (string, error) {
	return c.start(ctx, WorkflowPortfolioRebalancing, in)
}

func (c *Client) StartRiskMonitor(ctx context.Context, in RiskMonitorInput) (string, error) {
	return c.start(ctx, WorkflowRiskMonitoring, in)
}

// GetStatus returns the durable run record, terminal or not.
func (c *Client) GetStatus(ctx context.Context, runID string) (*Run, error) {
	return c.store.GetRun(ctx, runID)
}

// ListRuns returns all known runs ordered by start time.
func (c *Client) ListRuns(ctx context.Context) ([]*Run, error) {
	return c.store.ListRuns(ctx)
}

func (c *Client) start(ctx context.Context, workflow string, input any) (string, error) {
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode %s input: %w", workflow, err)
	}
	now := c.clock.Now()
	run := &Run{
		ID:        uuid.NewString(),
		Workflow:  workflow,
		Input:     raw,
		Status:    StatusScheduled,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	c.worker.Submit(run.ID)
	c.logger.Info("workflow scheduled",
		zap.String("workflow_id", run.ID),
		zap.String("workflow", workflow))
	return run.ID, nil
}
