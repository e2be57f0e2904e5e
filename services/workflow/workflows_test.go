package workflow

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quanttrade/services/engine"
)

// notificationRecorder captures every notification an executed workflow sends.
type notificationRecorder struct {
	sent []NotificationInput
}

func (r *notificationRecorder) activity() ActivityFunc {
	return func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in NotificationInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		r.sent = append(r.sent, in)
		return json.Marshal(map[string]string{"status": "sent"})
	}
}

func assessResult(violations ...string) ActivityFunc {
	return okActivity(AssessRiskResult{Violations: violations})
}

func sampleBar(close float64) engine.Bar {
	return engine.Bar{
		Symbol:    "BTCUSDT",
		Timestamp: testStart,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    10,
	}
}

func TestStrategyBacktestWorkflow(t *testing.T) {
	ex, store, clock := newTestExecutor()
	ex.RegisterWorkflow(WorkflowStrategyBacktest, StrategyBacktestWorkflow)

	notifier := &notificationRecorder{}
	var backtestIn ExecuteBacktestInput

	ex.RegisterActivity(ActivityFetchMarketData, okActivity(FetchMarketDataResult{
		Symbol: "BTCUSDT",
		Bars:   []engine.Bar{sampleBar(100), sampleBar(101)},
	}))
	ex.RegisterActivity(ActivityExecuteBacktest, func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		if err := json.Unmarshal(input, &backtestIn); err != nil {
			return nil, err
		}
		return json.Marshal(engine.BacktestResult{TotalTrades: 3, TotalReturnPercent: 12.5})
	})
	ex.RegisterActivity(ActivityAnalyzePerformance, okActivity(AnalyzePerformanceResult{Report: "fine"}))
	ex.RegisterActivity(ActivitySendNotification, notifier.activity())

	id := scheduleRun(t, store, clock, "bt-1", WorkflowStrategyBacktest, BacktestWorkflowInput{
		Strategy: StrategyConfig{Name: "ema_cross"},
		Symbol:   "BTCUSDT",
		Config: engine.BacktestConfig{
			InitialCapital: 100000,
			StartDate:      testStart,
			EndDate:        testStart.Add(24 * time.Hour),
		},
	})
	if err := ex.Execute(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	run, _ := store.GetRun(context.Background(), id)
	if run.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s", run.Status, StatusCompleted)
	}

	var result BacktestWorkflowResult
	if err := json.Unmarshal(run.Result, &result); err != nil {
		t.Fatal(err)
	}
	if result.Backtest.TotalTrades != 3 {
		t.Errorf("backtest trades = %d, want 3", result.Backtest.TotalTrades)
	}
	if result.Analysis.Report != "fine" {
		t.Errorf("analysis report = %q not propagated", result.Analysis.Report)
	}
	if len(backtestIn.Bars) != 2 {
		t.Errorf("backtest activity received %d bars, want the 2 fetched", len(backtestIn.Bars))
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != "backtest_completed" {
		t.Errorf("notifications = %+v, want one backtest_completed", notifier.sent)
	}
}

func TestRebalanceAbortsBeforeTrading(t *testing.T) {
	ex, store, clock := newTestExecutor()
	ex.RegisterWorkflow(WorkflowPortfolioRebalancing, PortfolioRebalancingWorkflow)

	trades := 0
	ex.RegisterActivity(ActivityAssessRisk, assessResult("exposure exceeds limit"))
	ex.RegisterActivity(ActivityExecuteTrade, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		trades++
		return json.Marshal(ExecuteTradeResult{Status: "filled"})
	})
	ex.RegisterActivity(ActivitySendNotification, (&notificationRecorder{}).activity())

	id := scheduleRun(t, store, clock, "rb-abort", WorkflowPortfolioRebalancing, RebalanceInput{
		AccountID:         "acct-1",
		PortfolioValue:    100000,
		TargetAllocations: map[string]float64{"BTCUSDT": 0.6, "ETHUSDT": 0.4},
	})
	if err := ex.Execute(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	run, _ := store.GetRun(context.Background(), id)
	if run.Status != StatusAborted {
		t.Fatalf("status = %s, want %s", run.Status, StatusAborted)
	}
	if trades != 0 {
		t.Fatalf("executed %d trades after a violated assessment, want 0", trades)
	}
	var abort AbortError
	if err := json.Unmarshal(run.Result, &abort); err != nil {
		t.Fatal(err)
	}
	if len(abort.Violations) != 1 {
		t.Errorf("violations = %v not carried into the abort result", abort.Violations)
	}
}

func TestRebalanceTradesDeterministicOrder(t *testing.T) {
	ex, store, clock := newTestExecutor()
	ex.RegisterWorkflow(WorkflowPortfolioRebalancing, PortfolioRebalancingWorkflow)

	notifier := &notificationRecorder{}
	var orders []ExecuteTradeInput
	ex.RegisterActivity(ActivityAssessRisk, assessResult())
	ex.RegisterActivity(ActivityExecuteTrade, func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in ExecuteTradeInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		orders = append(orders, in)
		return json.Marshal(ExecuteTradeResult{Status: "filled", Symbol: in.Symbol})
	})
	ex.RegisterActivity(ActivitySendNotification, notifier.activity())

	id := scheduleRun(t, store, clock, "rb-ok", WorkflowPortfolioRebalancing, RebalanceInput{
		AccountID:         "acct-1",
		PortfolioValue:    10000,
		TargetAllocations: map[string]float64{"ETHUSDT": 0.4, "BTCUSDT": 0.6},
	})
	if err := ex.Execute(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	if len(orders) != 2 || orders[0].Symbol != "BTCUSDT" || orders[1].Symbol != "ETHUSDT" {
		t.Fatalf("trade order = %+v, want BTCUSDT then ETHUSDT", orders)
	}
	if orders[0].Side != "rebalance" {
		t.Errorf("side = %q, want rebalance", orders[0].Side)
	}
	if !orders[0].Notional.Equal(decimal.NewFromFloat(6000)) {
		t.Errorf("BTC notional = %s, want 6000", orders[0].Notional)
	}

	run, _ := store.GetRun(context.Background(), id)
	var result RebalanceResult
	if err := json.Unmarshal(run.Result, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Trades) != 2 {
		t.Errorf("result has %d trades, want 2", len(result.Trades))
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != "rebalance_completed" {
		t.Errorf("notifications = %+v, want one rebalance_completed", notifier.sent)
	}
}

func TestRiskMonitoringRaisesAlerts(t *testing.T) {
	ex, store, clock := newTestExecutor()
	ex.RegisterWorkflow(WorkflowRiskMonitoring, RiskMonitoringWorkflow)

	notifier := &notificationRecorder{}
	ex.RegisterActivity(ActivityAssessRisk, assessResult("VaR exceeds tolerance"))
	ex.RegisterActivity(ActivitySendNotification, notifier.activity())

	// One hour at a 60-minute interval: exactly one check before the deadline.
	id := scheduleRun(t, store, clock, "rm-alert", WorkflowRiskMonitoring, RiskMonitorInput{
		AccountID:            "acct-1",
		DurationHours:        1,
		CheckIntervalMinutes: 60,
	})
	if err := ex.Execute(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	run, _ := store.GetRun(context.Background(), id)
	if run.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s (alerts never abort)", run.Status, StatusCompleted)
	}

	var result RiskMonitorResult
	if err := json.Unmarshal(run.Result, &result); err != nil {
		t.Fatal(err)
	}
	if result.Checks != 1 {
		t.Errorf("checks = %d, want 1", result.Checks)
	}
	if len(result.Alerts) != 1 || result.Alerts[0].Severity != "high" {
		t.Fatalf("alerts = %+v, want one high-severity alert", result.Alerts)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != "risk_alert" {
		t.Errorf("notifications = %+v, want one risk_alert", notifier.sent)
	}
}

func TestRiskMonitoringCleanSession(t *testing.T) {
	ex, store, clock := newTestExecutor()
	ex.RegisterWorkflow(WorkflowRiskMonitoring, RiskMonitoringWorkflow)

	ex.RegisterActivity(ActivityAssessRisk, assessResult())
	ex.RegisterActivity(ActivitySendNotification, (&notificationRecorder{}).activity())

	id := scheduleRun(t, store, clock, "rm-clean", WorkflowRiskMonitoring, RiskMonitorInput{
		AccountID:            "acct-1",
		DurationHours:        1,
		CheckIntervalMinutes: 30,
	})
	if err := ex.Execute(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	run, _ := store.GetRun(context.Background(), id)
	var result RiskMonitorResult
	if err := json.Unmarshal(run.Result, &result); err != nil {
		t.Fatal(err)
	}
	if result.Checks != 2 {
		t.Errorf("checks = %d, want 2 (one per 30m over 1h)", result.Checks)
	}
	if len(result.Alerts) != 0 {
		t.Errorf("alerts = %+v, want none", result.Alerts)
	}
}

func TestLiveTradingExecutesWhenClean(t *testing.T) {
	ex, store, clock := newTestExecutor()
	ex.RegisterWorkflow(WorkflowLiveTrading, LiveTradingWorkflow)

	notifier := &notificationRecorder{}
	var orders []ExecuteTradeInput
	ex.RegisterActivity(ActivityFetchMarketData, okActivity(FetchMarketDataResult{
		Symbol: "BTCUSDT",
		Bars:   []engine.Bar{sampleBar(42000)},
	}))
	ex.RegisterActivity(ActivityAssessRisk, assessResult())
	ex.RegisterActivity(ActivityExecuteTrade, func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in ExecuteTradeInput
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		orders = append(orders, in)
		return json.Marshal(ExecuteTradeResult{Status: "filled", OrderID: "o-1", Symbol: in.Symbol})
	})
	ex.RegisterActivity(ActivitySendNotification, notifier.activity())

	id := scheduleRun(t, store, clock, "lt-clean", WorkflowLiveTrading, LiveTradingInput{
		Strategy:      StrategyConfig{Name: "ema_cross"},
		AccountID:     "acct-1",
		Symbol:        "BTCUSDT",
		DurationHours: 1,
		TradeQuantity: decimal.NewFromFloat(0.01),
	})
	if err := ex.Execute(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	run, _ := store.GetRun(context.Background(), id)
	var result LiveTradingResult
	if err := json.Unmarshal(run.Result, &result); err != nil {
		t.Fatal(err)
	}
	// One hour with a 5-minute pacing sleep is 12 iterations.
	if result.Iterations != 12 {
		t.Errorf("iterations = %d, want 12", result.Iterations)
	}
	if result.TradesExecuted != 12 || result.RiskSkips != 0 {
		t.Errorf("trades = %d, skips = %d, want 12 and 0", result.TradesExecuted, result.RiskSkips)
	}
	if len(orders) != 12 {
		t.Fatalf("trade activity invoked %d times, want 12", len(orders))
	}
	if !orders[0].Quantity.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("quantity = %s, want 0.01", orders[0].Quantity)
	}
	if !orders[0].Price.Equal(decimal.NewFromFloat(42000)) {
		t.Errorf("price = %s, want last close 42000", orders[0].Price)
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Type != "live_trading_completed" {
		t.Errorf("notifications = %+v, want one live_trading_completed", notifier.sent)
	}
}

func TestLiveTradingSkipsIterationsOnViolations(t *testing.T) {
	ex, store, clock := newTestExecutor()
	ex.RegisterWorkflow(WorkflowLiveTrading, LiveTradingWorkflow)

	trades := 0
	ex.RegisterActivity(ActivityFetchMarketData, okActivity(FetchMarketDataResult{
		Symbol: "BTCUSDT",
		Bars:   []engine.Bar{sampleBar(42000)},
	}))
	ex.RegisterActivity(ActivityAssessRisk, assessResult("daily loss limit reached"))
	ex.RegisterActivity(ActivityExecuteTrade, func(context.Context, json.RawMessage) (json.RawMessage, error) {
		trades++
		return json.Marshal(ExecuteTradeResult{Status: "filled"})
	})
	ex.RegisterActivity(ActivitySendNotification, (&notificationRecorder{}).activity())

	id := scheduleRun(t, store, clock, "lt-skip", WorkflowLiveTrading, LiveTradingInput{
		AccountID:     "acct-1",
		Symbol:        "BTCUSDT",
		DurationHours: 1,
		TradeQuantity: decimal.NewFromFloat(0.01),
	})
	if err := ex.Execute(context.Background(), id); err != nil {
		t.Fatal(err)
	}

	run, _ := store.GetRun(context.Background(), id)
	if run.Status != StatusCompleted {
		t.Fatalf("status = %s, want %s (skips never abort the session)", run.Status, StatusCompleted)
	}
	var result LiveTradingResult
	if err := json.Unmarshal(run.Result, &result); err != nil {
		t.Fatal(err)
	}
	if result.RiskSkips != 12 || result.TradesExecuted != 0 {
		t.Errorf("skips = %d, trades = %d, want 12 and 0", result.RiskSkips, result.TradesExecuted)
	}
	if trades != 0 {
		t.Errorf("trade activity invoked %d times, want 0", trades)
	}
}
