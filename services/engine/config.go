package engine

import (
	"errors"
	"fmt"
	"time"
)

// DefaultMinLookbackBars is the minimum history a strategy sees before the
// engine starts asking it for signals.
const DefaultMinLookbackBars = 50

// BacktestConfig is the immutable input of one engine run.
type BacktestConfig struct {
	InitialCapital  float64   `json:"initial_capital"`
	CommissionRate  float64   `json:"commission_rate"`
	SlippageRate    float64   `json:"slippage_rate"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	MinLookbackBars int       `json:"min_lookback_bars"`
}

func (c BacktestConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return errors.New("initial capital must be positive")
	}
	if c.CommissionRate < 0 || c.CommissionRate >= 1 {
		return fmt.Errorf("commission rate %v outside [0,1)", c.CommissionRate)
	}
	if c.SlippageRate < 0 || c.SlippageRate >= 1 {
		return fmt.Errorf("slippage rate %v outside [0,1)", c.SlippageRate)
	}
	if !c.EndDate.After(c.StartDate) {
		return errors.New("end date must be after start date")
	}
	return nil
}

// withDefaults fills optional fields; zero MinLookbackBars means the default.
func (c BacktestConfig) withDefaults() BacktestConfig {
	if c.MinLookbackBars <= 0 {
		c.MinLookbackBars = DefaultMinLookbackBars
	}
	return c
}
