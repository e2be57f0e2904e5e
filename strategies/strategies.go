// Package strategies contains the trading strategies the backtesting engine
// can run. Strategies are constructed by name with a flat parameter map so
// workflow payloads and API requests stay schema-free.
package strategies

import (
	"fmt"

	"quanttrade/services/engine"
	"quanttrade/services/risk"
)

const (
	NameEMACross = "ema_cross"
	NameMomentum = "momentum"
)

// New builds a strategy by name. Unknown parameters are ignored; missing ones
// fall back to the strategy's defaults.
func New(name string, params map[string]float64, rm *risk.Manager) (engine.Strategy, error) {
	switch name {
	case NameEMACross:
		return NewEMACross(params, rm), nil
	case NameMomentum:
		return NewMomentum(params, rm), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}
