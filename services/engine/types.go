package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bar represents a single OHLCV observation for a symbol
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

type SignalAction string

const (
	SignalBuy  SignalAction = "buy"
	SignalSell SignalAction = "sell"
)

// TradingSignal is what a strategy emits for the current bar. Prices are
// decimal at this boundary; the simulator converts once on execution.
type TradingSignal struct {
	Symbol     string            `json:"symbol"`
	Action     SignalAction      `json:"action"`
	Price      decimal.Decimal   `json:"price"`
	StopLoss   decimal.Decimal   `json:"stop_loss"`
	TakeProfit decimal.Decimal   `json:"take_profit"`
	Confidence float64           `json:"confidence"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Strategy is the capability set the engine depends on. Concrete strategies
// live in the strategies package; the engine never imports them.
type Strategy interface {
	Name() string

	// GenerateSignals receives the bars seen so far, oldest first. The last
	// element is the current bar. Implementations must only act on that
	// prefix; the engine never hands out future bars.
	GenerateSignals(bars []Bar) []TradingSignal

	ValidateSignal(sig TradingSignal) bool

	// CalculatePositionSize returns the quantity to buy given available cash,
	// the quoted entry price, and the stop-loss price. Zero means skip.
	CalculatePositionSize(cash, price, stopLoss float64) float64
}

// ExitReason values recorded in Trade metadata.
const (
	ExitReasonStopLoss    = "stop_loss"
	ExitReasonTakeProfit  = "take_profit"
	ExitReasonManual      = "manual"
	ExitReasonBacktestEnd = "backtest_end"
)

// Trade is one completed round trip. Created when a position closes,
// immutable afterwards.
type Trade struct {
	Symbol     string            `json:"symbol"`
	Side       string            `json:"side"`
	EntryTime  time.Time         `json:"entry_time"`
	ExitTime   time.Time         `json:"exit_time"`
	EntryPrice float64           `json:"entry_price"`
	ExitPrice  float64           `json:"exit_price"`
	Quantity   float64           `json:"quantity"`
	Commission float64           `json:"commission"`
	Slippage   float64           `json:"slippage"`
	PnL        float64           `json:"pnl"`
	PnLPercent float64           `json:"pnl_percent"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Position is the engine-internal open state for one symbol. At most one
// position per symbol exists at a time; closing always produces exactly one
// Trade.
type Position struct {
	Symbol     string
	Quantity   float64
	EntryPrice float64
	EntryTime  time.Time
	StopLoss   float64
	TakeProfit float64
	Commission float64
	Slippage   float64
	Metadata   map[string]string
}

// EquityPoint is one snapshot of the portfolio, appended every bar.
type EquityPoint struct {
	Timestamp      time.Time `json:"timestamp"`
	PortfolioValue float64   `json:"portfolio_value"`
	Cash           float64   `json:"cash"`
	PositionsValue float64   `json:"positions_value"`
}
