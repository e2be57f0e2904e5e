package risk

// Limits is the immutable risk configuration consumed on every sizing and
// validation call. Fractions are of total portfolio value.
type Limits struct {
	MaxPositionSize  float64 `json:"max_position_size"`
	MaxPortfolioRisk float64 `json:"max_portfolio_risk"`
	MaxDailyLoss     float64 `json:"max_daily_loss"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	MaxLeverage      float64 `json:"max_leverage"`
	VaRConfidence    float64 `json:"var_confidence"`
}

// DefaultLimits mirrors a conservative production profile: 10% per position,
// 50% total exposure, 3% daily loss, 20% drawdown, 2x leverage, 95% VaR.
func DefaultLimits() Limits {
	return Limits{
		MaxPositionSize:  0.10,
		MaxPortfolioRisk: 0.50,
		MaxDailyLoss:     0.03,
		MaxDrawdown:      0.20,
		MaxLeverage:      2.0,
		VaRConfidence:    0.95,
	}
}
