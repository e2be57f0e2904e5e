package workflow

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultCheckInterval = 5 * time.Minute

// RiskMonitoringWorkflow polls the risk assessment on a fixed interval for
// the configured duration. A violation raises a high-severity alert but
// never aborts the session; the accumulated alert history is the result.
func RiskMonitoringWorkflow(wctx *Context, input json.RawMessage) (json.RawMessage, error) {
	var in RiskMonitorInput
	if err := Unmarshal(input, &in); err != nil {
		return nil, err
	}

	interval := time.Duration(in.CheckIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = defaultCheckInterval
	}

	start := wctx.Now()
	deadline := start.Add(time.Duration(in.DurationHours) * time.Hour)
	var out RiskMonitorResult

	for wctx.Now().Before(deadline) {
		out.Checks++

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
			_, err := wctx.ExecuteActivity(ActivitySendNotification, NotificationInput{
				Type:     "risk_alert",
				Severity: "high",
				Message:  fmt.Sprintf("risk violations for account %s", in.AccountID),
				Details:  map[string]string{"workflow_id": wctx.WorkflowID()},
			}, RetryPolicy{MaxAttempts: 3, StartToCloseTimeout: time.Minute})
			if err != nil {
				return nil, err
			}
			out.Alerts = append(out.Alerts, RiskAlert{
				Timestamp:  wctx.Now(),
				Severity:   "high",
				Violations: assessment.Violations,
			})
			wctx.Logger().Warn("risk alert raised",
				zap.String("account_id", in.AccountID),
				zap.Strings("violations", assessment.Violations))
		}

		if err := wctx.Sleep(interval); err != nil {
			return nil, err
		}
	}

	return json.Marshal(out)
}
