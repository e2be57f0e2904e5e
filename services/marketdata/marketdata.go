// Package marketdata supplies OHLCV bars to the rest of the system: from
// ClickHouse in production, from CSV files in the CLI tools, from a live
// websocket feed for paper trading, and from an in-memory provider in tests.
package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"quanttrade/services/engine"
)

// Provider fetches bars for a symbol within [start, end), oldest first.
type Provider interface {
	Fetch(ctx context.Context, symbol string, start, end time.Time) ([]engine.Bar, error)
}

// StaticProvider serves bars from memory. Used in tests and for CSV-backed
// backtests where the whole dataset is loaded up front.
type StaticProvider struct {
	mu   sync.RWMutex
	bars map[string][]engine.Bar
}

func NewStaticProvider() *StaticProvider {
	return &StaticProvider{bars: make(map[string][]engine.Bar)}
}

// Add appends bars for their symbols and keeps each series sorted.
func (p *StaticProvider) Add(bars ...engine.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range bars {
		p.bars[b.Symbol] = append(p.bars[b.Symbol], b)
	}
	for sym := range p.bars {
		series := p.bars[sym]
		sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	}
}

func (p *StaticProvider) Fetch(_ context.Context, symbol string, start, end time.Time) ([]engine.Bar, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	series, ok := p.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("no data for symbol %q", symbol)
	}
	var out []engine.Bar
	for _, b := range series {
		if b.Timestamp.Before(start) || !b.Timestamp.Before(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Gap is a hole in a bar series: the exclusive span between two consecutive
// bars that are more than one interval apart, with the number of bars missing.
type Gap struct {
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
	Missing int       `json:"missing"`
}

// DetectGaps scans a sorted bar series for missing intervals at the given
// cadence. Duplicate timestamps are ignored; series shorter than two bars
// have no gaps.
func DetectGaps(bars []engine.Bar, interval time.Duration) []Gap {
	if interval <= 0 {
		return nil
	}
	var gaps []Gap
	for i := 1; i < len(bars); i++ {
		delta := bars[i].Timestamp.Sub(bars[i-1].Timestamp)
		if delta <= interval {
			continue
		}
		missing := int(delta/interval) - 1
		if delta%interval != 0 {
			missing++
		}
		gaps = append(gaps, Gap{
			From:    bars[i-1].Timestamp.Add(interval),
			To:      bars[i].Timestamp,
			Missing: missing,
		})
	}
	return gaps
}
