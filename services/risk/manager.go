// Package risk provides the risk arithmetic shared by the backtest engine and
// the trading workflows: position sizing, VaR/CVaR, portfolio assessment and
// pre-trade validation. All numeric methods are total — degenerate input
// resolves to a safe zero result, never an error.
package risk

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
)

const (
	// quarterKelly caps the raw Kelly fraction; full Kelly is too aggressive
	// for drawdown-sensitive accounts.
	quarterKelly = 0.25

	dailyPnLWindow       = 30  // one trading month
	portfolioValueWindow = 252 // one trading year
)

// PositionExposure describes one open position for assessment purposes.
// Greeks are per unit and zero for non-options positions.
type PositionExposure struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Delta    float64 `json:"delta,omitempty"`
	Gamma    float64 `json:"gamma,omitempty"`
	Theta    float64 `json:"theta,omitempty"`
	Vega     float64 `json:"vega,omitempty"`
}

// PortfolioRisk is a point-in-time snapshot. It is recomputed on demand and
// never persisted by this package.
type PortfolioRisk struct {
	Timestamp         time.Time `json:"timestamp"`
	TotalValue        float64   `json:"total_value"`
	TotalExposure     float64   `json:"total_exposure"`
	VaR               float64   `json:"var"`
	CVaR              float64   `json:"cvar"`
	Delta             float64   `json:"delta"`
	Gamma             float64   `json:"gamma"`
	Theta             float64   `json:"theta"`
	Vega              float64   `json:"vega"`
	MarginUtilization float64   `json:"margin_utilization"`
	Leverage          float64   `json:"leverage"`
}

// Manager holds the limits plus small rolling buffers used for drawdown and
// daily-loss tracking across calls. Everything else is stateless arithmetic.
type Manager struct {
	limits Limits
	logger *zap.Logger

	dailyPnL        []float64
	portfolioValues []float64
}

func NewManager(limits Limits, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		limits: limits,
		logger: logger.Named("risk"),
	}
}

func (m *Manager) Limits() Limits { return m.limits }

// CalculatePositionSizeKelly returns the dollar allocation suggested by the
// Kelly formula f = (p*b - q)/b with b the win/loss ratio, scaled down to
// quarter-Kelly and capped at maxRisk (or the configured max position size
// when maxRisk <= 0). Degenerate inputs return 0.
func (m *Manager) CalculatePositionSizeKelly(balance, winRate, avgWin, avgLoss, maxRisk float64) float64 {
	if winRate <= 0 || avgLoss <= 0 || avgWin <= 0 || balance <= 0 {
		return 0
	}
	if maxRisk <= 0 {
		maxRisk = m.limits.MaxPositionSize
	}
	b := avgWin / avgLoss
	fraction := (winRate*b - (1 - winRate)) / b
	if fraction <= 0 {
		return 0
	}
	fraction *= quarterKelly
	if fraction > maxRisk {
		fraction = maxRisk
	}
	return balance * fraction
}

// CalculatePositionSizeFixed sizes a position so that hitting the stop loses
// riskPerTrade of the balance, capped by the max position size limit.
// Zero price risk (entry == stop) returns 0.
func (m *Manager) CalculatePositionSizeFixed(balance, riskPerTrade, entryPrice, stopLossPrice float64) float64 {
	priceRisk := math.Abs(entryPrice - stopLossPrice)
	if priceRisk == 0 || entryPrice <= 0 || balance <= 0 {
		return 0
	}
	quantity := balance * riskPerTrade / priceRisk
	maxQuantity := m.limits.MaxPositionSize * balance / entryPrice
	if quantity > maxQuantity {
		quantity = maxQuantity
	}
	return quantity
}

// CalculateVaR is historical-simulation Value at Risk in dollars.
func (m *Manager) CalculateVaR(returns []float64, confidence, portfolioValue float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	p := percentile(returns, (1-confidence)*100)
	return math.Abs(p) * portfolioValue
}

// CalculateCVaR is the mean of the tail at or below the VaR percentile,
// scaled to dollars. An empty tail returns 0.
func (m *Manager) CalculateCVaR(returns []float64, confidence, portfolioValue float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	threshold := percentile(returns, (1-confidence)*100)
	var tail []float64
	for _, r := range returns {
		if r <= threshold {
			tail = append(tail, r)
		}
	}
	if len(tail) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range tail {
		sum += r
	}
	return math.Abs(sum/float64(len(tail))) * portfolioValue
}

// CalculatePortfolioGreeks returns quantity-weighted sums across positions.
func (m *Manager) CalculatePortfolioGreeks(positions []PositionExposure) (delta, gamma, theta, vega float64) {
	for _, p := range positions {
		delta += p.Quantity * p.Delta
		gamma += p.Quantity * p.Gamma
		theta += p.Quantity * p.Theta
		vega += p.Quantity * p.Vega
	}
	return delta, gamma, theta, vega
}

// AssessPortfolioRisk aggregates exposure, tail risk, Greeks, leverage and a
// simplified margin-utilization estimate capped at 100%.
func (m *Manager) AssessPortfolioRisk(portfolioValue float64, positions []PositionExposure, returnsHistory []float64) PortfolioRisk {
	exposure := 0.0
	for _, p := range positions {
		exposure += math.Abs(p.Quantity * p.Price)
	}
	delta, gamma, theta, vega := m.CalculatePortfolioGreeks(positions)

	snapshot := PortfolioRisk{
		Timestamp:     time.Now().UTC(),
		TotalValue:    portfolioValue,
		TotalExposure: exposure,
		VaR:           m.CalculateVaR(returnsHistory, m.limits.VaRConfidence, portfolioValue),
		CVaR:          m.CalculateCVaR(returnsHistory, m.limits.VaRConfidence, portfolioValue),
		Delta:         delta,
		Gamma:         gamma,
		Theta:         theta,
		Vega:          vega,
	}
	if portfolioValue > 0 {
		snapshot.Leverage = exposure / portfolioValue
		if m.limits.MaxLeverage > 0 {
			snapshot.MarginUtilization = math.Min(exposure/(portfolioValue*m.limits.MaxLeverage), 1.0)
		}
	}
	return snapshot
}

// ValidateTrade runs the pre-trade checks in a fixed order: position size,
// post-trade portfolio exposure, daily loss (only when currently negative),
// then leverage. The first violated check wins; an approved trade returns
// (true, "approved"). The ordering is a contract callers rely on.
func (m *Manager) ValidateTrade(tradeValue, portfolioValue, currentExposure, dailyPnL float64) (bool, string) {
	if portfolioValue <= 0 {
		return false, "portfolio value is zero"
	}
	if tradeValue > m.limits.MaxPositionSize*portfolioValue {
		return false, "position size exceeds limit"
	}
	if (currentExposure+tradeValue)/portfolioValue > m.limits.MaxPortfolioRisk {
		return false, "portfolio exposure would exceed limit"
	}
	if dailyPnL < 0 && math.Abs(dailyPnL) > m.limits.MaxDailyLoss*portfolioValue {
		return false, "daily loss limit reached"
	}
	if (currentExposure+tradeValue)/portfolioValue > m.limits.MaxLeverage {
		return false, "leverage would exceed limit"
	}
	return true, "approved"
}

// CheckDrawdownLimit reports whether the drawdown from peak stays within the
// configured limit. A zero peak short-circuits to within-limit.
func (m *Manager) CheckDrawdownLimit(currentValue, peakValue float64) (bool, float64) {
	if peakValue <= 0 {
		return true, 0
	}
	drawdown := (peakValue - currentValue) / peakValue
	return drawdown <= m.limits.MaxDrawdown, drawdown
}

// UpdateDailyPnL appends to the rolling daily P&L buffer; the oldest entry is
// silently dropped past one trading month.
func (m *Manager) UpdateDailyPnL(pnl float64) {
	m.dailyPnL = append(m.dailyPnL, pnl)
	if len(m.dailyPnL) > dailyPnLWindow {
		m.dailyPnL = m.dailyPnL[len(m.dailyPnL)-dailyPnLWindow:]
	}
}

// UpdatePortfolioValue appends to the rolling portfolio-value buffer, capped
// at one trading year.
func (m *Manager) UpdatePortfolioValue(value float64) {
	m.portfolioValues = append(m.portfolioValues, value)
	if len(m.portfolioValues) > portfolioValueWindow {
		m.portfolioValues = m.portfolioValues[len(m.portfolioValues)-portfolioValueWindow:]
	}
}

func (m *Manager) DailyPnLHistory() []float64 {
	out := make([]float64, len(m.dailyPnL))
	copy(out, m.dailyPnL)
	return out
}

func (m *Manager) PortfolioValueHistory() []float64 {
	out := make([]float64, len(m.portfolioValues))
	copy(out, m.portfolioValues)
	return out
}

// percentile computes the q-th percentile (0..100) with linear interpolation
// over a sorted copy of xs.
func percentile(xs []float64, q float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	if q <= 0 {
		return sorted[0]
	}
	if q >= 100 {
		return sorted[len(sorted)-1]
	}
	rank := q / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
