// Package activities implements the worker-side activity functions the
// workflows call. Activities hold all the side effects; workflow bodies stay
// deterministic.
package activities

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"quanttrade/services/analyzer"
	"quanttrade/services/engine"
	"quanttrade/services/marketdata"
	"quanttrade/services/risk"
	"quanttrade/services/workflow"
	"quanttrade/strategies"
)

// Deps is the dependency set shared by all activities.
type Deps struct {
	Market   marketdata.Provider
	Risk     *risk.Manager
	Analyzer *analyzer.Analyzer
	Executor TradeExecutor
	Notifier Notifier
	Logger   *zap.Logger
}

// Register wires every activity into the executor.
func Register(ex *workflow.Executor, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger.Named("activities")

	ex.RegisterActivity(workflow.ActivityFetchMarketData, fetchMarketData(deps))
	ex.RegisterActivity(workflow.ActivityExecuteBacktest, executeBacktest(deps, logger))
	ex.RegisterActivity(workflow.ActivityAnalyzePerformance, analyzePerformance(deps))
	ex.RegisterActivity(workflow.ActivityAssessRisk, assessRisk(deps))
	ex.RegisterActivity(workflow.ActivityExecuteTrade, executeTrade(deps))
	ex.RegisterActivity(workflow.ActivitySendNotification, sendNotification(deps))
}

func fetchMarketData(deps Deps) workflow.ActivityFunc {
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in workflow.FetchMarketDataInput
		if err := workflow.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		bars, err := deps.Market.Fetch(ctx, in.Symbol, in.Start, in.End)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", in.Symbol, err)
		}
		return json.Marshal(workflow.FetchMarketDataResult{Symbol: in.Symbol, Bars: bars})
	}
}

func executeBacktest(deps Deps, logger *zap.Logger) workflow.ActivityFunc {
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in workflow.ExecuteBacktestInput
		if err := workflow.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		strategy, err := strategies.New(in.Strategy.Name, in.Strategy.Parameters, deps.Risk)
		if err != nil {
			return nil, err
		}
		eng := engine.New(in.Config, deps.Risk, logger)
		result, err := eng.Run(strategy, in.Bars)
		if err != nil {
			return nil, fmt.Errorf("run backtest: %w", err)
		}
		return json.Marshal(result)
	}
}

func analyzePerformance(deps Deps) workflow.ActivityFunc {
	return func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in workflow.AnalyzePerformanceInput
		if err := workflow.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		return json.Marshal(workflow.AnalyzePerformanceResult{
			Report:         deps.Analyzer.GenerateReport(&in.Result),
			MonthlyReturns: deps.Analyzer.CalculateMonthlyReturns(in.Result.EquityCurve),
		})
	}
}

func assessRisk(deps Deps) workflow.ActivityFunc {
	return func(_ context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in workflow.AssessRiskInput
		if err := workflow.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		snapshot := deps.Risk.AssessPortfolioRisk(in.PortfolioValue, in.Positions, in.ReturnsHistory)
		return json.Marshal(workflow.AssessRiskResult{
			Snapshot:   snapshot,
			Violations: violations(snapshot, deps.Risk.Limits()),
		})
	}
}

// violations compares a snapshot against the configured limits. Checks run
// in a fixed order so alert text is stable across runs.
func violations(s risk.PortfolioRisk, limits risk.Limits) []string {
	var out []string
	if s.TotalValue > 0 && s.TotalExposure/s.TotalValue > limits.MaxPortfolioRisk {
		out = append(out, fmt.Sprintf("exposure %.2f exceeds %.0f%% of portfolio value",
			s.TotalExposure, limits.MaxPortfolioRisk*100))
	}
	if s.Leverage > limits.MaxLeverage {
		out = append(out, fmt.Sprintf("leverage %.2fx exceeds limit %.2fx", s.Leverage, limits.MaxLeverage))
	}
	if s.TotalValue > 0 && s.VaR > limits.MaxDailyLoss*s.TotalValue {
		out = append(out, fmt.Sprintf("VaR %.2f exceeds daily loss tolerance %.2f",
			s.VaR, limits.MaxDailyLoss*s.TotalValue))
	}
	return out
}

func executeTrade(deps Deps) workflow.ActivityFunc {
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in workflow.ExecuteTradeInput
		if err := workflow.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		res, err := deps.Executor.Execute(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("execute trade %s %s: %w", in.Side, in.Symbol, err)
		}
		return json.Marshal(res)
	}
}

func sendNotification(deps Deps) workflow.ActivityFunc {
	return func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		var in workflow.NotificationInput
		if err := workflow.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		if err := deps.Notifier.Send(ctx, in); err != nil {
			return nil, fmt.Errorf("send notification: %w", err)
		}
		return json.Marshal(map[string]string{"status": "sent"})
	}
}
