package workflow

import (
	"time"

	"github.com/shopspring/decimal"

	"quanttrade/services/analyzer"
	"quanttrade/services/engine"
	"quanttrade/services/risk"
)

// Workflow type names.
const (
	WorkflowStrategyBacktest     = "strategy_backtest"
	WorkflowLiveTrading          = "live_trading"
	WorkflowPortfolioRebalancing = "portfolio_rebalancing"
	WorkflowRiskMonitoring       = "risk_monitoring"
)

// Activity names. The implementations live in services/activities.
const (
	ActivityFetchMarketData    = "fetch_market_data"
	ActivityExecuteBacktest    = "execute_backtest"
	ActivityAnalyzePerformance = "analyze_performance"
	ActivityAssessRisk         = "assess_risk"
	ActivityExecuteTrade       = "execute_trade"
	ActivitySendNotification   = "send_notification"
)

// StrategyConfig selects a strategy variant by name with numeric parameters.
type StrategyConfig struct {
	Name       string             `json:"name"`
	Parameters map[string]float64 `json:"parameters,omitempty"`
}

type BacktestWorkflowInput struct {
	Strategy StrategyConfig        `json:"strategy"`
	Config   engine.BacktestConfig `json:"config"`
	Symbol   string                `json:"symbol"`
}

type BacktestWorkflowResult struct {
	Backtest engine.BacktestResult    `json:"backtest"`
	Analysis AnalyzePerformanceResult `json:"analysis"`
}

type FetchMarketDataInput struct {
	Symbol string    `json:"symbol"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

type FetchMarketDataResult struct {
	Symbol string       `json:"symbol"`
	Bars   []engine.Bar `json:"bars"`
}

type ExecuteBacktestInput struct {
	Strategy StrategyConfig        `json:"strategy"`
	Config   engine.BacktestConfig `json:"config"`
	Bars     []engine.Bar          `json:"bars"`
}

type AnalyzePerformanceInput struct {
	Result engine.BacktestResult `json:"result"`
}

type AnalyzePerformanceResult struct {
	Report         string                   `json:"report"`
	MonthlyReturns []analyzer.MonthlyReturn `json:"monthly_returns,omitempty"`
}

type AssessRiskInput struct {
	AccountID      string                  `json:"account_id"`
	PortfolioValue float64                 `json:"portfolio_value"`
	Positions      []risk.PositionExposure `json:"positions,omitempty"`
	ReturnsHistory []float64               `json:"returns_history,omitempty"`
}

type AssessRiskResult struct {
	Snapshot   risk.PortfolioRisk `json:"snapshot"`
	Violations []string           `json:"violations,omitempty"`
}

type ExecuteTradeInput struct {
	AccountID string          `json:"account_id"`
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Notional  decimal.Decimal `json:"notional,omitempty"`
}

type ExecuteTradeResult struct {
	Status  string `json:"status"`
	OrderID string `json:"order_id"`
	Symbol  string `json:"symbol"`
}

type NotificationInput struct {
	Type     string            `json:"type"`
	Severity string            `json:"severity"`
	Message  string            `json:"message"`
	Details  map[string]string `json:"details,omitempty"`
}

type LiveTradingInput struct {
	Strategy      StrategyConfig  `json:"strategy"`
	AccountID     string          `json:"account_id"`
	Symbol        string          `json:"symbol"`
	DurationHours int             `json:"duration_hours"`
	TradeQuantity decimal.Decimal `json:"trade_quantity"`
}

type LiveTradingResult struct {
	Iterations     int `json:"iterations"`
	TradesExecuted int `json:"trades_executed"`
	RiskSkips      int `json:"risk_skips"`
}

type RebalanceInput struct {
	AccountID         string             `json:"account_id"`
	PortfolioValue    float64            `json:"portfolio_value"`
	TargetAllocations map[string]float64 `json:"target_allocations"`
}

type RebalanceResult struct {
	Trades []ExecuteTradeResult `json:"trades"`
}

type RiskMonitorInput struct {
	AccountID            string `json:"account_id"`
	DurationHours        int    `json:"duration_hours"`
	CheckIntervalMinutes int    `json:"check_interval_minutes"`
}

type RiskAlert struct {
	Timestamp  time.Time `json:"timestamp"`
	Severity   string    `json:"severity"`
	Violations []string  `json:"violations"`
}

type RiskMonitorResult struct {
	Checks int         `json:"checks"`
	Alerts []RiskAlert `json:"alerts"`
}
