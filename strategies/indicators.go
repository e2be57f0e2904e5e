package strategies

import (
	"math"

	"quanttrade/services/engine"
)

// ema computes a TradingView-style EMA over closes: seeded with the SMA of
// the first period values, then alpha = 2/(period+1) smoothing. Indices
// before period-1 are zero.
func ema(bars []engine.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	if period <= 0 || len(bars) < period {
		return out
	}

	var sma float64
	for i := 0; i < period; i++ {
		sma += bars[i].Close
	}
	sma /= float64(period)
	out[period-1] = sma

	alpha := 2.0 / float64(period+1)
	for i := period; i < len(bars); i++ {
		out[i] = bars[i].Close*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// atr computes Average True Range with Wilder's smoothing: seeded with the
// SMA of the first period true ranges, then RMA = (prev*(N-1)+TR)/N.
// Indices before period are zero.
func atr(bars []engine.Bar, period int) []float64 {
	out := make([]float64, len(bars))
	if period <= 0 || len(bars) < period+1 {
		return out
	}

	tr := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	var seed float64
	for i := 1; i <= period; i++ {
		seed += tr[i]
	}
	out[period] = seed / float64(period)

	for i := period + 1; i < len(bars); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// rateOfChange returns the fractional change of the last close against the
// close lookback bars earlier, or 0 when there is not enough history.
func rateOfChange(bars []engine.Bar, lookback int) float64 {
	if lookback <= 0 || len(bars) <= lookback {
		return 0
	}
	base := bars[len(bars)-1-lookback].Close
	if base == 0 {
		return 0
	}
	return bars[len(bars)-1].Close/base - 1
}
