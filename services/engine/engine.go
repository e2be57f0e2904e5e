// Package engine implements the bar-by-bar backtest simulator. One Engine
// instance drives one run at a time; it is reusable across runs but not safe
// for concurrent runs.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"quanttrade/services/risk"
)

type Engine struct {
	cfg    BacktestConfig
	risk   *risk.Manager
	logger *zap.Logger

	cash           float64
	portfolioValue float64
	positions      map[string]*openPosition
	trades         []Trade
	equity         []EquityPoint

	dayKey        string
	dayStartValue float64
}

type openPosition struct {
	Position
	lastPrice float64
}

// New builds an engine. The risk manager may be nil, in which case trade
// validation is skipped. Callers construct one engine per run context; there
// is no shared global instance.
func New(cfg BacktestConfig, rm *risk.Manager, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:    cfg,
		risk:   rm,
		logger: logger.Named("engine"),
	}
}

// Run simulates the strategy over the given bar series and returns the full
// result. Bars must be in chronological order; the engine does not re-sort.
func (e *Engine) Run(strategy Strategy, bars []Bar) (*BacktestResult, error) {
	if strategy == nil {
		return nil, errors.New("nil strategy")
	}
	cfg := e.cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest config: %w", err)
	}
	e.reset(cfg)

	data := filterRange(bars, cfg.StartDate, cfg.EndDate)
	e.logger.Info("starting backtest",
		zap.String("strategy", strategy.Name()),
		zap.Int("bars", len(data)),
		zap.Float64("initial_capital", cfg.InitialCapital),
	)

	for i := range data {
		bar := data[i]
		e.rollDay(bar.Timestamp)
		e.markToMarket(bar)

		if i+1 >= cfg.MinLookbackBars {
			// Strategies only ever see the prefix up to the current bar.
			for _, sig := range strategy.GenerateSignals(data[:i+1]) {
				if !strategy.ValidateSignal(sig) {
					continue
				}
				e.executeSignal(cfg, strategy, sig, bar)
			}
		}

		e.checkExits(cfg, bar)
	}

	if len(data) > 0 {
		e.forceCloseAll(cfg, data[len(data)-1])
	}

	result := e.calculatePerformance(strategy.Name(), firstSymbol(data), cfg)
	e.logger.Info("backtest complete",
		zap.Int("total_trades", result.TotalTrades),
		zap.Float64("final_capital", result.FinalCapital),
	)
	return result, nil
}

func (e *Engine) reset(cfg BacktestConfig) {
	e.cash = cfg.InitialCapital
	e.portfolioValue = cfg.InitialCapital
	e.positions = make(map[string]*openPosition)
	e.trades = nil
	e.equity = nil
	e.dayKey = ""
	e.dayStartValue = cfg.InitialCapital
}

// markToMarket reprices the current bar's symbol and appends an equity
// snapshot. This happens every bar unconditionally.
func (e *Engine) markToMarket(bar Bar) {
	if pos, ok := e.positions[bar.Symbol]; ok {
		pos.lastPrice = bar.Close
	}
	positionsValue := 0.0
	for _, pos := range e.positions {
		positionsValue += pos.Quantity * pos.lastPrice
	}
	e.portfolioValue = e.cash + positionsValue
	e.equity = append(e.equity, EquityPoint{
		Timestamp:      bar.Timestamp,
		PortfolioValue: e.portfolioValue,
		Cash:           e.cash,
		PositionsValue: positionsValue,
	})
}

func (e *Engine) rollDay(ts time.Time) {
	key := ts.Format("2006-01-02")
	if key != e.dayKey {
		e.dayKey = key
		e.dayStartValue = e.portfolioValue
	}
}

func (e *Engine) dailyPnL() float64 {
	return e.portfolioValue - e.dayStartValue
}

func (e *Engine) exposure() float64 {
	total := 0.0
	for _, pos := range e.positions {
		total += pos.Quantity * pos.lastPrice
	}
	return total
}

func (e *Engine) executeSignal(cfg BacktestConfig, strategy Strategy, sig TradingSignal, bar Bar) {
	switch sig.Action {
	case SignalBuy:
		e.executeBuy(cfg, strategy, sig, bar)
	case SignalSell:
		if pos, ok := e.positions[sig.Symbol]; ok {
			e.closePosition(cfg, pos, sig.Price.InexactFloat64(), bar.Timestamp, ExitReasonManual)
		}
	}
}

func (e *Engine) executeBuy(cfg BacktestConfig, strategy Strategy, sig TradingSignal, bar Bar) {
	if _, ok := e.positions[sig.Symbol]; ok {
		// One open position per symbol; no pyramiding.
		return
	}
	price := sig.Price.InexactFloat64()
	stopLoss := sig.StopLoss.InexactFloat64()
	quantity := strategy.CalculatePositionSize(e.cash, price, stopLoss)
	if quantity <= 0 || price <= 0 {
		return
	}

	// Slippage is always adverse: buys fill above the quoted price.
	fillPrice := price * (1 + cfg.SlippageRate)
	positionValue := fillPrice * quantity
	commission := positionValue * cfg.CommissionRate

	if e.risk != nil {
		ok, reason := e.risk.ValidateTrade(positionValue, e.portfolioValue, e.exposure(), e.dailyPnL())
		if !ok {
			e.logger.Debug("signal rejected by risk check",
				zap.String("symbol", sig.Symbol),
				zap.String("reason", reason),
			)
			return
		}
	}

	totalCost := positionValue + commission
	if totalCost > e.cash {
		e.logger.Debug("insufficient cash for signal",
			zap.String("symbol", sig.Symbol),
			zap.Float64("cost", totalCost),
			zap.Float64("cash", e.cash),
		)
		return
	}

	e.cash -= totalCost
	e.positions[sig.Symbol] = &openPosition{
		Position: Position{
			Symbol:     sig.Symbol,
			Quantity:   quantity,
			EntryPrice: fillPrice,
			EntryTime:  bar.Timestamp,
			StopLoss:   stopLoss,
			TakeProfit: sig.TakeProfit.InexactFloat64(),
			Commission: commission,
			Slippage:   (fillPrice - price) * quantity,
			Metadata:   sig.Metadata,
		},
		lastPrice: fillPrice,
	}
}

// checkExits applies stop-loss/take-profit for the current bar's symbol.
// First-touch resolution guarantees at most one exit per position per bar.
func (e *Engine) checkExits(cfg BacktestConfig, bar Bar) {
	pos, ok := e.positions[bar.Symbol]
	if !ok {
		return
	}
	switch ResolveFirstTouch(bar, pos.TakeProfit, pos.StopLoss) {
	case TouchStopLoss:
		e.closePosition(cfg, pos, pos.StopLoss, bar.Timestamp, ExitReasonStopLoss)
	case TouchTakeProfit:
		e.closePosition(cfg, pos, pos.TakeProfit, bar.Timestamp, ExitReasonTakeProfit)
	}
}

func (e *Engine) forceCloseAll(cfg BacktestConfig, last Bar) {
	symbols := make([]string, 0, len(e.positions))
	for sym := range e.positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)
	for _, sym := range symbols {
		e.closePosition(cfg, e.positions[sym], last.Close, last.Timestamp, ExitReasonBacktestEnd)
	}
}

func (e *Engine) closePosition(cfg BacktestConfig, pos *openPosition, price float64, ts time.Time, reason string) {
	// Slippage is adverse on exit too: sells fill below the quoted price.
	fillPrice := price * (1 - cfg.SlippageRate)
	proceeds := fillPrice * pos.Quantity
	commission := proceeds * cfg.CommissionRate

	entryCost := pos.EntryPrice*pos.Quantity + pos.Commission
	pnl := proceeds - commission - entryCost
	pnlPercent := 0.0
	if entryCost != 0 {
		pnlPercent = pnl / entryCost * 100
	}

	e.cash += proceeds - commission

	metadata := map[string]string{"exit_reason": reason}
	for k, v := range pos.Metadata {
		metadata[k] = v
	}

	e.trades = append(e.trades, Trade{
		Symbol:     pos.Symbol,
		Side:       "long",
		EntryTime:  pos.EntryTime,
		ExitTime:   ts,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  fillPrice,
		Quantity:   pos.Quantity,
		Commission: pos.Commission + commission,
		Slippage:   pos.Slippage + (price-fillPrice)*pos.Quantity,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		Metadata:   metadata,
	})
	delete(e.positions, pos.Symbol)

	e.logger.Debug("position closed",
		zap.String("symbol", pos.Symbol),
		zap.String("reason", reason),
		zap.Float64("pnl", pnl),
	)
}

func filterRange(bars []Bar, start, end time.Time) []Bar {
	out := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out
}

func firstSymbol(bars []Bar) string {
	if len(bars) == 0 {
		return ""
	}
	return bars[0].Symbol
}
