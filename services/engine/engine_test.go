package engine

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quanttrade/services/risk"
)

// scriptedStrategy emits pre-planned signals keyed by the number of bars it
// has seen, and records every prefix length it was handed.
type scriptedStrategy struct {
	signals  map[int][]TradingSignal
	quantity float64
	prefixes []int
}

func (s *scriptedStrategy) Name() string { return "scripted" }

func (s *scriptedStrategy) GenerateSignals(bars []Bar) []TradingSignal {
	s.prefixes = append(s.prefixes, len(bars))
	return s.signals[len(bars)]
}

func (s *scriptedStrategy) ValidateSignal(TradingSignal) bool { return true }

func (s *scriptedStrategy) CalculatePositionSize(cash, price, stopLoss float64) float64 {
	return s.quantity
}

func buySignal(symbol string, price, stop, target float64) TradingSignal {
	return TradingSignal{
		Symbol:     symbol,
		Action:     SignalBuy,
		Price:      decimal.NewFromFloat(price),
		StopLoss:   decimal.NewFromFloat(stop),
		TakeProfit: decimal.NewFromFloat(target),
		Confidence: 1,
	}
}

func testBars(symbol string, ohlc ...[4]float64) []Bar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]Bar, len(ohlc))
	for i, v := range ohlc {
		bars[i] = Bar{
			Symbol:    symbol,
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      v[0],
			High:      v[1],
			Low:       v[2],
			Close:     v[3],
			Volume:    1000,
		}
	}
	return bars
}

func testConfig(bars []Bar) BacktestConfig {
	return BacktestConfig{
		InitialCapital:  10000,
		CommissionRate:  0.001,
		SlippageRate:    0,
		StartDate:       bars[0].Timestamp,
		EndDate:         bars[len(bars)-1].Timestamp.Add(time.Millisecond),
		MinLookbackBars: 1,
	}
}

func within(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRunBuyThenTakeProfit(t *testing.T) {
	bars := testBars("BTCUSDT",
		[4]float64{100, 101, 99, 100},
		[4]float64{105, 111, 100, 108},
	)
	strategy := &scriptedStrategy{
		quantity: 10,
		signals:  map[int][]TradingSignal{1: {buySignal("BTCUSDT", 100, 90, 110)}},
	}

	result, err := New(testConfig(bars), nil, nil).Run(strategy, bars)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 1 || result.WinningTrades != 1 {
		t.Fatalf("trades = %d (wins %d), want 1 winning trade", result.TotalTrades, result.WinningTrades)
	}

	trade := result.Trades[0]
	if trade.Metadata["exit_reason"] != ExitReasonTakeProfit {
		t.Errorf("exit_reason = %q, want %q", trade.Metadata["exit_reason"], ExitReasonTakeProfit)
	}
	// Entry: 10 units at 100 plus 1.0 commission. Exit at the take-profit 110:
	// proceeds 1100 minus 1.1 commission. PnL = 1100 - 1.1 - 1001 = 97.9.
	if !within(trade.PnL, 97.9) {
		t.Errorf("pnl = %v, want 97.9", trade.PnL)
	}
	if !within(result.FinalCapital, 10097.9) {
		t.Errorf("final capital = %v, want 10097.9", result.FinalCapital)
	}
	if len(result.EquityCurve) != len(bars) {
		t.Errorf("equity curve has %d points, want one per bar (%d)", len(result.EquityCurve), len(bars))
	}
}

func TestRunStopLossExit(t *testing.T) {
	bars := testBars("BTCUSDT",
		[4]float64{100, 101, 99, 100},
		[4]float64{98, 99, 85, 95},
	)
	strategy := &scriptedStrategy{
		quantity: 10,
		signals:  map[int][]TradingSignal{1: {buySignal("BTCUSDT", 100, 90, 110)}},
	}

	result, err := New(testConfig(bars), nil, nil).Run(strategy, bars)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 1 || result.LosingTrades != 1 {
		t.Fatalf("trades = %d (losses %d), want 1 losing trade", result.TotalTrades, result.LosingTrades)
	}
	trade := result.Trades[0]
	if trade.Metadata["exit_reason"] != ExitReasonStopLoss {
		t.Errorf("exit_reason = %q, want %q", trade.Metadata["exit_reason"], ExitReasonStopLoss)
	}
	if !within(trade.ExitPrice, 90) {
		t.Errorf("exit price = %v, want the stop level 90", trade.ExitPrice)
	}
}

func TestRunForceClosesOpenPositions(t *testing.T) {
	bars := testBars("BTCUSDT",
		[4]float64{100, 101, 99, 100},
		[4]float64{101, 103, 100, 102},
		[4]float64{102, 105, 101, 104},
	)
	strategy := &scriptedStrategy{
		quantity: 10,
		signals:  map[int][]TradingSignal{1: {buySignal("BTCUSDT", 100, 90, 200)}},
	}

	result, err := New(testConfig(bars), nil, nil).Run(strategy, bars)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1 (forced close)", result.TotalTrades)
	}
	trade := result.Trades[0]
	if trade.Metadata["exit_reason"] != ExitReasonBacktestEnd {
		t.Errorf("exit_reason = %q, want %q", trade.Metadata["exit_reason"], ExitReasonBacktestEnd)
	}
	if !within(trade.ExitPrice, 104) {
		t.Errorf("exit price = %v, want last close 104", trade.ExitPrice)
	}
}

func TestRunCapitalIdentity(t *testing.T) {
	bars := testBars("BTCUSDT",
		[4]float64{100, 101, 99, 100},
		[4]float64{105, 111, 100, 108},
		[4]float64{108, 109, 107, 108},
		[4]float64{108, 109, 100, 103},
	)
	strategy := &scriptedStrategy{
		quantity: 10,
		signals: map[int][]TradingSignal{
			1: {buySignal("BTCUSDT", 100, 90, 110)},
			3: {buySignal("BTCUSDT", 108, 101, 150)},
		},
	}

	result, err := New(testConfig(bars), nil, nil).Run(strategy, bars)
	if err != nil {
		t.Fatal(err)
	}
	sum := 0.0
	for _, trade := range result.Trades {
		sum += trade.PnL
	}
	if !within(result.FinalCapital, result.InitialCapital+sum) {
		t.Errorf("final %v != initial %v + pnl sum %v", result.FinalCapital, result.InitialCapital, sum)
	}
	if !within(result.TotalReturn, result.FinalCapital-result.InitialCapital) {
		t.Errorf("total return %v inconsistent with capitals", result.TotalReturn)
	}
	if result.TotalTrades != result.WinningTrades+result.LosingTrades {
		t.Errorf("trade counts inconsistent: %d != %d + %d",
			result.TotalTrades, result.WinningTrades, result.LosingTrades)
	}
}

func TestRunHandsStrategyOnlyPrefixes(t *testing.T) {
	bars := testBars("BTCUSDT",
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 101, 99, 100},
	)
	cfg := testConfig(bars)
	cfg.MinLookbackBars = 3
	strategy := &scriptedStrategy{quantity: 1}

	if _, err := New(cfg, nil, nil).Run(strategy, bars); err != nil {
		t.Fatal(err)
	}
	want := []int{3, 4, 5}
	if len(strategy.prefixes) != len(want) {
		t.Fatalf("strategy called %d times (%v), want %v", len(strategy.prefixes), strategy.prefixes, want)
	}
	for i, n := range want {
		if strategy.prefixes[i] != n {
			t.Fatalf("call %d saw %d bars, want %d", i, strategy.prefixes[i], n)
		}
	}
}

func TestRunSkipsWhenCashInsufficient(t *testing.T) {
	bars := testBars("BTCUSDT",
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 101, 99, 100},
	)
	strategy := &scriptedStrategy{
		quantity: 1000, // 100k notional against 10k cash
		signals:  map[int][]TradingSignal{1: {buySignal("BTCUSDT", 100, 90, 110)}},
	}

	result, err := New(testConfig(bars), nil, nil).Run(strategy, bars)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 0 {
		t.Fatalf("trades = %d, want 0 (unaffordable signal)", result.TotalTrades)
	}
	if !within(result.FinalCapital, result.InitialCapital) {
		t.Errorf("final capital = %v, want untouched %v", result.FinalCapital, result.InitialCapital)
	}
}

func TestRunRiskManagerRejectsOversizedTrade(t *testing.T) {
	bars := testBars("BTCUSDT",
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 101, 99, 100},
	)
	limits := risk.DefaultLimits()
	limits.MaxPositionSize = 0.01 // 1% of a 10k portfolio = $100
	rm := risk.NewManager(limits, nil)

	strategy := &scriptedStrategy{
		quantity: 10, // $1000 notional
		signals:  map[int][]TradingSignal{1: {buySignal("BTCUSDT", 100, 90, 110)}},
	}

	result, err := New(testConfig(bars), rm, nil).Run(strategy, bars)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 0 {
		t.Fatalf("trades = %d, want 0 (risk rejection)", result.TotalTrades)
	}
}

func TestRunNoPyramiding(t *testing.T) {
	bars := testBars("BTCUSDT",
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 101, 99, 100},
	)
	strategy := &scriptedStrategy{
		quantity: 10,
		signals: map[int][]TradingSignal{
			1: {buySignal("BTCUSDT", 100, 90, 200)},
			2: {buySignal("BTCUSDT", 100, 90, 200)},
			3: {buySignal("BTCUSDT", 100, 90, 200)},
		},
	}

	result, err := New(testConfig(bars), nil, nil).Run(strategy, bars)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1 (one position per symbol)", result.TotalTrades)
	}
}

func TestRunSellSignalClosesManually(t *testing.T) {
	bars := testBars("BTCUSDT",
		[4]float64{100, 101, 99, 100},
		[4]float64{105, 107, 104, 106},
	)
	sell := TradingSignal{
		Symbol:     "BTCUSDT",
		Action:     SignalSell,
		Price:      decimal.NewFromFloat(106),
		Confidence: 1,
	}
	strategy := &scriptedStrategy{
		quantity: 10,
		signals: map[int][]TradingSignal{
			1: {buySignal("BTCUSDT", 100, 90, 200)},
			2: {sell},
		},
	}

	result, err := New(testConfig(bars), nil, nil).Run(strategy, bars)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", result.TotalTrades)
	}
	trade := result.Trades[0]
	if trade.Metadata["exit_reason"] != ExitReasonManual {
		t.Errorf("exit_reason = %q, want %q", trade.Metadata["exit_reason"], ExitReasonManual)
	}
	if !within(trade.ExitPrice, 106) {
		t.Errorf("exit price = %v, want 106", trade.ExitPrice)
	}
}

func TestRunAdverseSlippageBothLegs(t *testing.T) {
	bars := testBars("BTCUSDT",
		[4]float64{100, 101, 99, 100},
		[4]float64{100, 101, 99, 100},
	)
	cfg := testConfig(bars)
	cfg.SlippageRate = 0.01
	strategy := &scriptedStrategy{
		quantity: 10,
		signals:  map[int][]TradingSignal{1: {buySignal("BTCUSDT", 100, 0, 0)}},
	}

	result, err := New(cfg, nil, nil).Run(strategy, bars)
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTrades != 1 {
		t.Fatalf("trades = %d, want 1", result.TotalTrades)
	}
	trade := result.Trades[0]
	if !within(trade.EntryPrice, 101) {
		t.Errorf("entry fill = %v, want 101 (buy slips up)", trade.EntryPrice)
	}
	if !within(trade.ExitPrice, 99) {
		t.Errorf("exit fill = %v, want 99 (sell slips down)", trade.ExitPrice)
	}
	if !within(trade.Slippage, 10+10) {
		t.Errorf("recorded slippage = %v, want 20", trade.Slippage)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	bars := testBars("BTCUSDT", [4]float64{100, 101, 99, 100})
	strategy := &scriptedStrategy{quantity: 1}

	bad := testConfig(bars)
	bad.InitialCapital = 0
	if _, err := New(bad, nil, nil).Run(strategy, bars); err == nil {
		t.Error("zero capital accepted")
	}

	bad = testConfig(bars)
	bad.CommissionRate = 1
	if _, err := New(bad, nil, nil).Run(strategy, bars); err == nil {
		t.Error("commission rate 1 accepted")
	}

	bad = testConfig(bars)
	bad.EndDate = bad.StartDate
	if _, err := New(bad, nil, nil).Run(strategy, bars); err == nil {
		t.Error("end date == start date accepted")
	}

	if _, err := New(testConfig(bars), nil, nil).Run(nil, bars); err == nil {
		t.Error("nil strategy accepted")
	}
}

func TestResolveFirstTouch(t *testing.T) {
	tests := []struct {
		name       string
		bar        Bar
		takeProfit float64
		stopLoss   float64
		want       FirstTouchResult
	}{
		{"neither", Bar{Open: 100, High: 105, Low: 95}, 110, 90, TouchNone},
		{"take profit only", Bar{Open: 100, High: 112, Low: 95}, 110, 90, TouchTakeProfit},
		{"stop loss only", Bar{Open: 100, High: 105, Low: 88}, 110, 90, TouchStopLoss},
		{"both, open near low", Bar{Open: 92, High: 112, Low: 88}, 110, 90, TouchStopLoss},
		{"both, open near high", Bar{Open: 108, High: 112, Low: 88}, 110, 90, TouchTakeProfit},
		{"both, equidistant", Bar{Open: 100, High: 112, Low: 88}, 110, 90, TouchTakeProfit},
		{"zero stop is absent", Bar{Open: 100, High: 105, Low: 0.5}, 110, 0, TouchNone},
		{"zero target is absent", Bar{Open: 100, High: 200, Low: 95}, 0, 90, TouchNone},
	}
	for _, tc := range tests {
		if got := ResolveFirstTouch(tc.bar, tc.takeProfit, tc.stopLoss); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMaxDrawdown(t *testing.T) {
	curve := []EquityPoint{
		{PortfolioValue: 100},
		{PortfolioValue: 120},
		{PortfolioValue: 90},
		{PortfolioValue: 110},
		{PortfolioValue: 105},
	}
	dollars, percent := maxDrawdown(curve)
	if !within(dollars, 30) {
		t.Errorf("drawdown = %v, want 30", dollars)
	}
	if !within(percent, 25) {
		t.Errorf("drawdown percent = %v, want 25", percent)
	}

	if d, p := maxDrawdown(nil); d != 0 || p != 0 {
		t.Errorf("empty curve drawdown = (%v, %v), want zeros", d, p)
	}
}

func TestSharpeRatioFlatReturnsIsZero(t *testing.T) {
	if got := sharpeRatio([]float64{0.01, 0.01, 0.01}); got != 0 {
		t.Errorf("sharpe on zero-variance returns = %v, want 0", got)
	}
	if got := sharpeRatio(nil); got != 0 {
		t.Errorf("sharpe on no returns = %v, want 0", got)
	}
	if got := sortinoRatio([]float64{0.01, 0.02, 0.03}); got != 0 {
		t.Errorf("sortino with no downside = %v, want 0", got)
	}
}

func TestStddevNeedsTwoSamples(t *testing.T) {
	if got := stddev([]float64{5}); got != 0 {
		t.Errorf("stddev of one sample = %v, want 0", got)
	}
	if got := stddev([]float64{1, 3}); !within(got, 1) {
		t.Errorf("stddev = %v, want 1 (population)", got)
	}
}

func TestEquityReturns(t *testing.T) {
	curve := []EquityPoint{
		{PortfolioValue: 100},
		{PortfolioValue: 110},
		{PortfolioValue: 99},
	}
	got := equityReturns(curve)
	if len(got) != 2 || !within(got[0], 0.1) || !within(got[1], -0.1) {
		t.Errorf("returns = %v, want [0.1 -0.1]", got)
	}
	if got := equityReturns(curve[:1]); got != nil {
		t.Errorf("single-point returns = %v, want nil", got)
	}
}

func TestAnnualizedReturnGuards(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	curve := []EquityPoint{
		{Timestamp: start, PortfolioValue: 100},
		{Timestamp: start.AddDate(1, 0, 0), PortfolioValue: 110},
	}
	got := annualizedReturn(curve, 100, 110)
	if math.Abs(got-10) > 0.5 {
		t.Errorf("one-year annualized return = %v, want ~10", got)
	}
	if got := annualizedReturn(curve[:1], 100, 110); got != 0 {
		t.Errorf("short curve = %v, want 0", got)
	}
	if got := annualizedReturn(curve, 0, 110); got != 0 {
		t.Errorf("zero initial = %v, want 0", got)
	}
}
