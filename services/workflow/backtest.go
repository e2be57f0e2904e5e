package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"quanttrade/services/engine"
)

// StrategyBacktestWorkflow orchestrates one full backtest: fetch data, run
// the engine, analyze, notify. Each activity carries its own retry budget.
func StrategyBacktestWorkflow(wctx *Context, input json.RawMessage) (json.RawMessage, error) {
	var in BacktestWorkflowInput
	if err := Unmarshal(input, &in); err != nil {
		return nil, err
	}

	fetchRaw, err := wctx.ExecuteActivity(ActivityFetchMarketData, FetchMarketDataInput{
		Symbol: in.Symbol,
		Start:  in.Config.StartDate,
		End:    in.Config.EndDate,
	}, RetryPolicy{MaxAttempts: 3, StartToCloseTimeout: 10 * time.Minute})
	if err != nil {
		return nil, err
	}
	var fetched FetchMarketDataResult
	if err := Unmarshal(fetchRaw, &fetched); err != nil {
		return nil, err
	}

	// The long pole: a single coarse-grained activity, deliberately given a
	// wide timeout and a small retry count.
	backtestRaw, err := wctx.ExecuteActivity(ActivityExecuteBacktest, ExecuteBacktestInput{
		Strategy: in.Strategy,
		Config:   in.Config,
		Bars:     fetched.Bars,
	}, RetryPolicy{MaxAttempts: 2, StartToCloseTimeout: 2 * time.Hour})
	if err != nil {
		return nil, err
	}
	var result engine.BacktestResult
	if err := Unmarshal(backtestRaw, &result); err != nil {
		return nil, err
	}

	analysisRaw, err := wctx.ExecuteActivity(ActivityAnalyzePerformance, AnalyzePerformanceInput{
		Result: result,
	}, RetryPolicy{MaxAttempts: 3, StartToCloseTimeout: 5 * time.Minute})
	if err != nil {
		return nil, err
	}
	var analysis AnalyzePerformanceResult
	if err := Unmarshal(analysisRaw, &analysis); err != nil {
		return nil, err
	}

	_, err = wctx.ExecuteActivity(ActivitySendNotification, NotificationInput{
		Type:     "backtest_completed",
		Severity: "info",
		Message: fmt.Sprintf("backtest %s on %s finished: %d trades, %.2f%% return",
			in.Strategy.Name, in.Symbol, result.TotalTrades, result.TotalReturnPercent),
		Details: map[string]string{"workflow_id": wctx.WorkflowID()},
	}, RetryPolicy{MaxAttempts: 1, StartToCloseTimeout: time.Minute})
	if err != nil {
		return nil, err
	}

	return json.Marshal(BacktestWorkflowResult{Backtest: result, Analysis: analysis})
}
