// Package monitoring keeps process-level counters and renders them in the
// Prometheus text exposition format for the /metrics endpoint.
package monitoring

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics is a concurrency-safe counter registry.
type Metrics struct {
	mu        sync.RWMutex
	counters  map[string]int64
	startedAt time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{
		counters:  make(map[string]int64),
		startedAt: time.Now().UTC(),
	}
}

// Inc bumps a named counter by one.
func (m *Metrics) Inc(name string) { m.Add(name, 1) }

// Add bumps a named counter by delta.
func (m *Metrics) Add(name string, delta int64) {
	m.mu.Lock()
	m.counters[name] += delta
	m.mu.Unlock()
}

// Get returns the current value of a counter.
func (m *Metrics) Get(name string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[name]
}

// Render produces the Prometheus text format, counters in sorted order plus
// process uptime.
func (m *Metrics) Render() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.counters))
	for name := range m.counters {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "# TYPE %s counter\n%s %d\n", name, name, m.counters[name])
	}
	fmt.Fprintf(&sb, "# TYPE process_uptime_seconds gauge\nprocess_uptime_seconds %.0f\n",
		time.Since(m.startedAt).Seconds())
	return sb.String()
}
