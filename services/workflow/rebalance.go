package workflow

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioRebalancingWorkflow is single-pass: the risk assessment runs
// first and any violation aborts the whole rebalance before a single trade
// is attempted. Otherwise it executes one trade per symbol in the target
// allocation map and notifies.
func PortfolioRebalancingWorkflow(wctx *Context, input json.RawMessage) (json.RawMessage, error) {
	var in RebalanceInput
	if err := Unmarshal(input, &in); err != nil {
		return nil, err
	}

	assessRaw, err := wctx.ExecuteActivity(ActivityAssessRisk, AssessRiskInput{
		AccountID:      in.AccountID,
		PortfolioValue: in.PortfolioValue,
	}, RetryPolicy{MaxAttempts: 3, StartToCloseTimeout: time.Minute})
	if err != nil {
		return nil, err
	}
	var assessment AssessRiskResult
	if err := Unmarshal(assessRaw, &assessment); err != nil {
		return nil, err
	}
	if len(assessment.Violations) > 0 {
		return nil, Abort("risk limits violated, rebalance aborted", assessment.Violations)
	}

	// Deterministic ordering over the allocation map.
	symbols := make([]string, 0, len(in.TargetAllocations))
	for sym := range in.TargetAllocations {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var out RebalanceResult
	for _, sym := range symbols {
		targetValue := in.TargetAllocations[sym] * in.PortfolioValue
		tradeRaw, err := wctx.ExecuteActivity(ActivityExecuteTrade, ExecuteTradeInput{
			AccountID: in.AccountID,
			Symbol:    sym,
			Side:      "rebalance",
			Notional:  decimal.NewFromFloat(targetValue),
		}, RetryPolicy{MaxAttempts: 2, StartToCloseTimeout: 5 * time.Minute})
		if err != nil {
			return nil, err
		}
		var trade ExecuteTradeResult
		if err := Unmarshal(tradeRaw, &trade); err != nil {
			return nil, err
		}
		out.Trades = append(out.Trades, trade)
	}

	_, err = wctx.ExecuteActivity(ActivitySendNotification, NotificationInput{
		Type:     "rebalance_completed",
		Severity: "info",
		Message:  fmt.Sprintf("rebalanced %d positions for account %s", len(out.Trades), in.AccountID),
		Details:  map[string]string{"workflow_id": wctx.WorkflowID()},
	}, RetryPolicy{MaxAttempts: 1, StartToCloseTimeout: time.Minute})
	if err != nil {
		return nil, err
	}

	return json.Marshal(out)
}
