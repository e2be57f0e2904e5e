package strategies

import (
	"fmt"

	"github.com/shopspring/decimal"

	"quanttrade/services/engine"
	"quanttrade/services/risk"
)

// EMACross signals a buy when the fast EMA crosses above the slow EMA on the
// current bar. Stops are ATR multiples around the entry close, which keeps
// the protective distance proportional to recent volatility.
type EMACross struct {
	FastPeriod   int
	SlowPeriod   int
	ATRPeriod    int
	TPMultiplier float64
	SLMultiplier float64
	RiskPerTrade float64

	rm *risk.Manager
}

func NewEMACross(params map[string]float64, rm *risk.Manager) *EMACross {
	return &EMACross{
		FastPeriod:   int(param(params, "ema_fast", 12)),
		SlowPeriod:   int(param(params, "ema_slow", 26)),
		ATRPeriod:    int(param(params, "atr_period", 14)),
		TPMultiplier: param(params, "atr_tp_mult", 2.0),
		SLMultiplier: param(params, "atr_sl_mult", 1.5),
		RiskPerTrade: param(params, "risk_per_trade", 0.02),
		rm:           rm,
	}
}

func (s *EMACross) Name() string {
	return fmt.Sprintf("%s_%d_%d", NameEMACross, s.FastPeriod, s.SlowPeriod)
}

func (s *EMACross) GenerateSignals(bars []engine.Bar) []engine.TradingSignal {
	n := len(bars)
	if n < s.SlowPeriod+1 || n < s.ATRPeriod+1 {
		return nil
	}

	fast := ema(bars, s.FastPeriod)
	slow := ema(bars, s.SlowPeriod)
	vol := atr(bars, s.ATRPeriod)

	// Cross above: fast was at or below slow on the previous bar and is
	// strictly above on the current one.
	crossed := fast[n-2] <= slow[n-2] && fast[n-1] > slow[n-1]
	if !crossed || vol[n-1] <= 0 {
		return nil
	}

	last := bars[n-1]
	confidence := 0.5
	if slow[n-1] > 0 {
		spread := (fast[n-1] - slow[n-1]) / slow[n-1]
		confidence = clamp(0.5+spread*50, 0.5, 1.0)
	}

	return []engine.TradingSignal{{
		Symbol:     last.Symbol,
		Action:     engine.SignalBuy,
		Price:      decimal.NewFromFloat(last.Close),
		StopLoss:   decimal.NewFromFloat(last.Close - vol[n-1]*s.SLMultiplier),
		TakeProfit: decimal.NewFromFloat(last.Close + vol[n-1]*s.TPMultiplier),
		Confidence: confidence,
		Metadata: map[string]string{
			"strategy": s.Name(),
			"atr":      fmt.Sprintf("%.6f", vol[n-1]),
		},
	}}
}

func (s *EMACross) ValidateSignal(sig engine.TradingSignal) bool {
	price := sig.Price.InexactFloat64()
	stop := sig.StopLoss.InexactFloat64()
	tp := sig.TakeProfit.InexactFloat64()
	if price <= 0 || stop <= 0 {
		return false
	}
	return stop < price && price < tp && sig.Confidence >= 0.5
}

func (s *EMACross) CalculatePositionSize(cash, price, stopLoss float64) float64 {
	if s.rm != nil {
		return s.rm.CalculatePositionSizeFixed(cash, s.RiskPerTrade, price, stopLoss)
	}
	if price <= 0 {
		return 0
	}
	return cash * s.RiskPerTrade / price
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
