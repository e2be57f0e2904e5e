package engine

import "math"

const tradingDaysPerYear = 252

// calculatePerformance derives all result metrics from the equity curve and
// trade list. The math is total: every degenerate denominator resolves to 0
// instead of an error, so a result always carries every metric.
func (e *Engine) calculatePerformance(strategyName, symbol string, cfg BacktestConfig) *BacktestResult {
	res := &BacktestResult{
		StrategyName:   strategyName,
		Symbol:         symbol,
		StartDate:      cfg.StartDate,
		EndDate:        cfg.EndDate,
		InitialCapital: cfg.InitialCapital,
		FinalCapital:   e.cash,
		EquityCurve:    e.equity,
		Trades:         e.trades,
	}

	res.TotalReturn = res.FinalCapital - res.InitialCapital
	res.TotalReturnPercent = res.TotalReturn / res.InitialCapital * 100

	var grossWin, grossLoss float64
	for _, t := range e.trades {
		if t.PnL > 0 {
			res.WinningTrades++
			grossWin += t.PnL
		} else {
			res.LosingTrades++
			grossLoss += -t.PnL
		}
	}
	res.TotalTrades = res.WinningTrades + res.LosingTrades
	if res.TotalTrades > 0 {
		res.WinRate = float64(res.WinningTrades) / float64(res.TotalTrades) * 100
	}
	if res.WinningTrades > 0 {
		res.AvgWin = grossWin / float64(res.WinningTrades)
	}
	if res.LosingTrades > 0 {
		res.AvgLoss = grossLoss / float64(res.LosingTrades)
	}
	if grossLoss > 0 {
		res.ProfitFactor = grossWin / grossLoss
	}

	returns := equityReturns(e.equity)

	res.AnnualizedReturn = annualizedReturn(e.equity, res.InitialCapital, res.FinalCapital)
	res.SharpeRatio = sharpeRatio(returns)
	res.SortinoRatio = sortinoRatio(returns)
	res.Volatility = stddev(returns) * math.Sqrt(tradingDaysPerYear) * 100
	res.MaxDrawdown, res.MaxDrawdownPercent = maxDrawdown(e.equity)

	if res.MaxDrawdownPercent != 0 {
		res.CalmarRatio = res.AnnualizedReturn / math.Abs(res.MaxDrawdownPercent)
	}
	if res.MaxDrawdown != 0 {
		res.RecoveryFactor = res.TotalReturn / math.Abs(res.MaxDrawdown)
	}
	return res
}

// equityReturns is the bar-over-bar percent change of portfolio value.
func equityReturns(curve []EquityPoint) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].PortfolioValue
		if prev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (curve[i].PortfolioValue-prev)/prev)
	}
	return out
}

func annualizedReturn(curve []EquityPoint, initial, final float64) float64 {
	if len(curve) < 2 || initial <= 0 {
		return 0
	}
	days := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp).Hours() / 24
	years := days / 365.25
	if years <= 0 {
		return 0
	}
	growth := final / initial
	if growth <= 0 {
		return 0
	}
	return (math.Pow(growth, 1/years) - 1) * 100
}

func sharpeRatio(returns []float64) float64 {
	sd := stddev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(tradingDaysPerYear)
}

// sortinoRatio is the Sharpe analogue over the downside subset only.
func sortinoRatio(returns []float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	sd := stddev(downside)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd * math.Sqrt(tradingDaysPerYear)
}

func maxDrawdown(curve []EquityPoint) (dollars, percent float64) {
	peak := 0.0
	for _, p := range curve {
		if p.PortfolioValue > peak {
			peak = p.PortfolioValue
		}
		if peak <= 0 {
			continue
		}
		dd := peak - p.PortfolioValue
		if dd > dollars {
			dollars = dd
		}
		ddPct := dd / peak * 100
		if ddPct > percent {
			percent = ddPct
		}
	}
	return dollars, percent
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sq float64
	for _, x := range xs {
		d := x - m
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(xs)))
}
