package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"go.uber.org/zap"
)

// liveTradingInterval spaces trading iterations.
const liveTradingInterval = 5 * time.Minute

// LiveTradingWorkflow loops for the requested duration: fetch the last hour
// of data, assess risk, and trade only when the assessment is clean. Risk
// violations skip the iteration without aborting the session.
func LiveTradingWorkflow(wctx *Context, input json.RawMessage) (json.RawMessage, error) {
	var in LiveTradingInput
	if err := Unmarshal(input, &in); err != nil {
		return nil, err
	}

	start := wctx.Now()
	deadline := start.Add(time.Duration(in.DurationHours) * time.Hour)
	var out LiveTradingResult

	for wctx.Now().Before(deadline) {
		out.Iterations++

		windowEnd := wctx.Now()
		fetchRaw, err := wctx.ExecuteActivity(ActivityFetchMarketData, FetchMarketDataInput{
			Symbol: in.Symbol,
			Start:  windowEnd.Add(-time.Hour),
			End:    windowEnd,
		}, RetryPolicy{MaxAttempts: 3, StartToCloseTimeout: 2 * time.Minute})
		if err != nil {
			return nil, err
		}
		var fetched FetchMarketDataResult
		if err := Unmarshal(fetchRaw, &fetched); err != nil {
			return nil, err
		}

		assessRaw, err := wctx.ExecuteActivity(ActivityAssessRisk, AssessRiskInput{
			AccountID: in.AccountID,
		}, RetryPolicy{MaxAttempts: 3, StartToCloseTimeout: time.Minute})
		if err != nil {
			return nil, err
		}
		var assessment AssessRiskResult
		if err := Unmarshal(assessRaw, &assessment); err != nil {
			return nil, err
		}

		if len(assessment.Violations) > 0 {
			out.RiskSkips++
			wctx.Logger().Warn("risk violations, skipping iteration",
				zap.Strings("violations", assessment.Violations))
		} else if len(fetched.Bars) > 0 {
			last := fetched.Bars[len(fetched.Bars)-1]
			_, err := wctx.ExecuteActivity(ActivityExecuteTrade, ExecuteTradeInput{
				AccountID: in.AccountID,
				Symbol:    in.Symbol,
				Side:      "buy",
				Quantity:  in.TradeQuantity,
				Price:     decimal.NewFromFloat(last.Close),
			}, RetryPolicy{MaxAttempts: 2, StartToCloseTimeout: 5 * time.Minute})
			if err != nil {
				return nil, err
			}
			out.TradesExecuted++
		}

		if err := wctx.Sleep(liveTradingInterval); err != nil {
			return nil, err
		}
	}

	_, err := wctx.ExecuteActivity(ActivitySendNotification, NotificationInput{
		Type:     "live_trading_completed",
		Severity: "info",
		Message: fmt.Sprintf("live trading session for %s finished: %d trades over %d iterations",
			in.Symbol, out.TradesExecuted, out.Iterations),
		Details: map[string]string{"workflow_id": wctx.WorkflowID()},
	}, RetryPolicy{MaxAttempts: 1, StartToCloseTimeout: time.Minute})
	if err != nil {
		return nil, err
	}

	return json.Marshal(out)
}
