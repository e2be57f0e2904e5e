package analyzer

import (
	"math"
	"strings"
	"testing"
	"time"

	"quanttrade/services/engine"
)

func TestGenerateReport(t *testing.T) {
	res := &engine.BacktestResult{
		StrategyName:       "ema_cross_12_26",
		Symbol:             "BTCUSDT",
		StartDate:          time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		InitialCapital:     100000,
		FinalCapital:       112500,
		TotalReturn:        12500,
		TotalReturnPercent: 12.5,
		TotalTrades:        40,
		WinningTrades:      25,
		LosingTrades:       15,
		WinRate:            62.5,
		SharpeRatio:        1.8,
		MaxDrawdown:        4200,
		MaxDrawdownPercent: 3.9,
	}

	report := New().GenerateReport(res)

	for _, section := range []string{
		"BACKTEST REPORT",
		"--- Overview ---",
		"--- Returns ---",
		"--- Trade Statistics ---",
		"--- Risk Metrics ---",
	} {
		if !strings.Contains(report, section) {
			t.Errorf("report missing section %q", section)
		}
	}

	for _, line := range []string{
		"Strategy:          ema_cross_12_26",
		"Symbol:            BTCUSDT",
		"Period:            2024-01-01 to 2024-06-30",
		"Initial Capital:   $100,000.00",
		"Final Capital:     $112,500.00",
		"Total Return:      $12,500.00 (12.50%)",
		"Total Trades:      40",
		"Win Rate:          62.50%",
		"Sharpe Ratio:      1.80",
		"Max Drawdown:      $4,200.00 (3.90%)",
	} {
		if !strings.Contains(report, line) {
			t.Errorf("report missing line %q", line)
		}
	}
}

func TestGenerateReportZeroResult(t *testing.T) {
	// Every section renders even for an empty run; nothing panics or drops out.
	report := New().GenerateReport(&engine.BacktestResult{})
	if !strings.Contains(report, "Profit Factor:     0.00") {
		t.Error("zero result did not render trade statistics")
	}
	if !strings.Contains(report, "Recovery Factor:   0.00") {
		t.Error("zero result did not render risk metrics")
	}
}

func TestCalculateMonthlyReturns(t *testing.T) {
	mk := func(y int, m time.Month, d int, value float64) engine.EquityPoint {
		return engine.EquityPoint{
			Timestamp:      time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			PortfolioValue: value,
		}
	}
	curve := []engine.EquityPoint{
		mk(2024, time.January, 5, 95),
		mk(2024, time.January, 31, 100), // January month-end
		mk(2024, time.February, 10, 104),
		mk(2024, time.February, 28, 110), // +10% vs January
		mk(2024, time.March, 29, 99),     // -10% vs February
	}

	got := New().CalculateMonthlyReturns(curve)
	if len(got) != 2 {
		t.Fatalf("got %d monthly rows, want 2", len(got))
	}
	if got[0].Month != "2024-02" || math.Abs(got[0].Return-10) > 1e-9 {
		t.Errorf("row 0 = %+v, want 2024-02 +10%%", got[0])
	}
	if got[1].Month != "2024-03" || math.Abs(got[1].Return-(-10)) > 1e-9 {
		t.Errorf("row 1 = %+v, want 2024-03 -10%%", got[1])
	}

	if got := New().CalculateMonthlyReturns(nil); got != nil {
		t.Errorf("empty curve returned %v, want nil", got)
	}
	single := New().CalculateMonthlyReturns(curve[:2])
	if len(single) != 0 {
		t.Errorf("single month returned %v rows, want 0", len(single))
	}
}
