// Package proto holds the wire types for the workflow gRPC surface. The
// message structs mirror workflow.proto; decimals travel as strings and
// structured payloads as JSON, so clients in other languages stay simple.
package proto

import "context"

type StrategyConfig struct {
	Name       string             `json:"name"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
}

type BacktestConfig struct {
	InitialCapital  float64 `json:"initial_capital"`
	CommissionRate  float64 `json:"commission_rate"`
	SlippageRate    float64 `json:"slippage_rate"`
	StartTime       int64   `json:"start_time"`
	EndTime         int64   `json:"end_time"`
	MinLookbackBars int32   `json:"min_lookback_bars"`
}

type StartBacktestRequest struct {
	Strategy StrategyConfig `json:"strategy"`
	Config   BacktestConfig `json:"config"`
	Symbol   string         `json:"symbol"`
}

type StartLiveTradingRequest struct {
	Strategy      StrategyConfig `json:"strategy"`
	AccountId     string         `json:"account_id"`
	Symbol        string         `json:"symbol"`
	DurationHours int32          `json:"duration_hours"`
	TradeQuantity string         `json:"trade_quantity"`
}

type StartRebalanceRequest struct {
	AccountId         string             `json:"account_id"`
	PortfolioValue    float64            `json:"portfolio_value"`
	TargetAllocations map[string]float64 `json:"target_allocations"`
}

type StartRiskMonitorRequest struct {
	AccountId            string `json:"account_id"`
	DurationHours        int32  `json:"duration_hours"`
	CheckIntervalMinutes int32  `json:"check_interval_minutes"`
}

type StartWorkflowResponse struct {
	WorkflowId string `json:"workflow_id"`
}

type GetWorkflowStatusRequest struct {
	WorkflowId string `json:"workflow_id"`
}

type GetWorkflowStatusResponse struct {
	WorkflowId string `json:"workflow_id"`
	Workflow   string `json:"workflow"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	ResultJson string `json:"result_json,omitempty"`
	StartedAt  int64  `json:"started_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// gRPC server interface stub

type UnimplementedWorkflowServiceServer struct{}

func RegisterWorkflowServiceServer(_ any, _ WorkflowServiceServer) {}

type WorkflowServiceServer interface {
	StartBacktest(context.Context, *StartBacktestRequest) (*StartWorkflowResponse, error)
	StartLiveTrading(context.Context, *StartLiveTradingRequest) (*StartWorkflowResponse, error)
	StartRebalance(context.Context, *StartRebalanceRequest) (*StartWorkflowResponse, error)
	StartRiskMonitor(context.Context, *StartRiskMonitorRequest) (*StartWorkflowResponse, error)
	GetWorkflowStatus(context.Context, *GetWorkflowStatusRequest) (*GetWorkflowStatusResponse, error)
}
