package strategies

import (
	"fmt"

	"github.com/shopspring/decimal"

	"quanttrade/services/engine"
	"quanttrade/services/risk"
)

// Momentum buys breakouts: the current close must be the highest of the
// lookback window and the rate of change over that window must clear the
// threshold. Stops are plain percentage offsets from the entry.
type Momentum struct {
	Lookback     int
	Threshold    float64
	StopPct      float64
	TargetPct    float64
	RiskPerTrade float64

	rm *risk.Manager
}

func NewMomentum(params map[string]float64, rm *risk.Manager) *Momentum {
	return &Momentum{
		Lookback:     int(param(params, "lookback", 20)),
		Threshold:    param(params, "threshold", 0.05),
		StopPct:      param(params, "stop_pct", 0.03),
		TargetPct:    param(params, "target_pct", 0.06),
		RiskPerTrade: param(params, "risk_per_trade", 0.02),
		rm:           rm,
	}
}

func (s *Momentum) Name() string {
	return fmt.Sprintf("%s_%d", NameMomentum, s.Lookback)
}

func (s *Momentum) GenerateSignals(bars []engine.Bar) []engine.TradingSignal {
	n := len(bars)
	if n <= s.Lookback {
		return nil
	}

	roc := rateOfChange(bars, s.Lookback)
	if roc < s.Threshold {
		return nil
	}

	last := bars[n-1]
	for i := n - 1 - s.Lookback; i < n-1; i++ {
		if bars[i].Close >= last.Close {
			return nil
		}
	}

	confidence := clamp(0.5+roc, 0.5, 1.0)
	return []engine.TradingSignal{{
		Symbol:     last.Symbol,
		Action:     engine.SignalBuy,
		Price:      decimal.NewFromFloat(last.Close),
		StopLoss:   decimal.NewFromFloat(last.Close * (1 - s.StopPct)),
		TakeProfit: decimal.NewFromFloat(last.Close * (1 + s.TargetPct)),
		Confidence: confidence,
		Metadata: map[string]string{
			"strategy": s.Name(),
			"roc":      fmt.Sprintf("%.6f", roc),
		},
	}}
}

func (s *Momentum) ValidateSignal(sig engine.TradingSignal) bool {
	price := sig.Price.InexactFloat64()
	if price <= 0 {
		return false
	}
	return sig.StopLoss.InexactFloat64() < price && price < sig.TakeProfit.InexactFloat64()
}

func (s *Momentum) CalculatePositionSize(cash, price, stopLoss float64) float64 {
	if s.rm != nil {
		return s.rm.CalculatePositionSizeFixed(cash, s.RiskPerTrade, price, stopLoss)
	}
	if price <= 0 {
		return 0
	}
	return cash * s.RiskPerTrade / price
}
