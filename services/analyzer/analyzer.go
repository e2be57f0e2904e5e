// Package analyzer turns a completed backtest result into human-readable
// artifacts. It is a pure transformation layer with no state of its own.
package analyzer

import (
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"quanttrade/services/engine"
)

// Analyzer formats reports with English digit grouping for dollar amounts.
type Analyzer struct {
	printer *message.Printer
}

func New() *Analyzer {
	return &Analyzer{printer: message.NewPrinter(language.English)}
}

// GenerateReport renders the fixed multi-section text report. The math behind
// every metric is total, so no section is ever omitted.
func (a *Analyzer) GenerateReport(res *engine.BacktestResult) string {
	p := a.printer
	var b strings.Builder

	b.WriteString("==========================================\n")
	b.WriteString("          BACKTEST REPORT\n")
	b.WriteString("==========================================\n\n")

	b.WriteString("--- Overview ---\n")
	p.Fprintf(&b, "Strategy:          %s\n", res.StrategyName)
	p.Fprintf(&b, "Symbol:            %s\n", res.Symbol)
	p.Fprintf(&b, "Period:            %s to %s\n",
		res.StartDate.Format("2006-01-02"), res.EndDate.Format("2006-01-02"))
	p.Fprintf(&b, "Initial Capital:   $%.2f\n", res.InitialCapital)
	p.Fprintf(&b, "Final Capital:     $%.2f\n\n", res.FinalCapital)

	b.WriteString("--- Returns ---\n")
	p.Fprintf(&b, "Total Return:      $%.2f (%.2f%%)\n", res.TotalReturn, res.TotalReturnPercent)
	p.Fprintf(&b, "Annualized Return: %.2f%%\n\n", res.AnnualizedReturn)

	b.WriteString("--- Trade Statistics ---\n")
	p.Fprintf(&b, "Total Trades:      %d\n", res.TotalTrades)
	p.Fprintf(&b, "Winning Trades:    %d\n", res.WinningTrades)
	p.Fprintf(&b, "Losing Trades:     %d\n", res.LosingTrades)
	p.Fprintf(&b, "Win Rate:          %.2f%%\n", res.WinRate)
	p.Fprintf(&b, "Average Win:       $%.2f\n", res.AvgWin)
	p.Fprintf(&b, "Average Loss:      $%.2f\n", res.AvgLoss)
	p.Fprintf(&b, "Profit Factor:     %.2f\n\n", res.ProfitFactor)

	b.WriteString("--- Risk Metrics ---\n")
	p.Fprintf(&b, "Sharpe Ratio:      %.2f\n", res.SharpeRatio)
	p.Fprintf(&b, "Sortino Ratio:     %.2f\n", res.SortinoRatio)
	p.Fprintf(&b, "Max Drawdown:      $%.2f (%.2f%%)\n", res.MaxDrawdown, res.MaxDrawdownPercent)
	p.Fprintf(&b, "Volatility:        %.2f%%\n", res.Volatility)
	p.Fprintf(&b, "Calmar Ratio:      %.2f\n", res.CalmarRatio)
	p.Fprintf(&b, "Recovery Factor:   %.2f\n", res.RecoveryFactor)
	b.WriteString("==========================================\n")

	return b.String()
}

// MonthlyReturn is one row of the month-over-month return table.
type MonthlyReturn struct {
	Month  string  `json:"month"` // YYYY-MM
	Return float64 `json:"return_percent"`
}

// CalculateMonthlyReturns resamples the equity curve to month-end values and
// computes the percent change between consecutive months.
func (a *Analyzer) CalculateMonthlyReturns(curve []engine.EquityPoint) []MonthlyReturn {
	if len(curve) == 0 {
		return nil
	}

	// Last observed portfolio value per month.
	monthEnd := make(map[string]float64)
	var months []string
	for _, p := range curve {
		key := p.Timestamp.Format("2006-01")
		if _, seen := monthEnd[key]; !seen {
			months = append(months, key)
		}
		monthEnd[key] = p.PortfolioValue
	}
	sort.Strings(months)

	out := make([]MonthlyReturn, 0, len(months))
	for i := 1; i < len(months); i++ {
		prev := monthEnd[months[i-1]]
		if prev == 0 {
			out = append(out, MonthlyReturn{Month: months[i]})
			continue
		}
		change := (monthEnd[months[i]] - prev) / prev * 100
		out = append(out, MonthlyReturn{Month: months[i], Return: change})
	}
	return out
}
