package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go.uber.org/zap"

	"quanttrade/services/engine"
)

// LiveFeedConfig configures the websocket tick feed.
type LiveFeedConfig struct {
	URL               string
	Symbols           []string
	BarInterval       time.Duration
	ReconnectInterval time.Duration
	MaxReconnects     int
}

func (c LiveFeedConfig) withDefaults() LiveFeedConfig {
	if c.BarInterval <= 0 {
		c.BarInterval = time.Minute
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = 5 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 10
	}
	return c
}

// tickMessage is the wire format of one trade tick.
type tickMessage struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
	Size   string `json:"size"`
	Time   int64  `json:"time"`
}

type subscribeMessage struct {
	Method  string   `json:"method"`
	Symbols []string `json:"symbols"`
}

// LiveFeed maintains a websocket connection to a tick stream and aggregates
// trades into fixed-interval OHLCV bars. Completed bars are retained in
// memory and served through the Provider interface, so a live paper-trading
// workflow reads the same way a historical backtest does.
type LiveFeed struct {
	cfg    LiveFeedConfig
	logger *zap.Logger
	dialer *websocket.Dialer

	mu      sync.RWMutex
	conn    *websocket.Conn
	open    map[string]*buildingBar
	history *StaticProvider

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type buildingBar struct {
	start                  time.Time
	open, high, low, close float64
	volume                 float64
	ticks                  int
}

func NewLiveFeed(cfg LiveFeedConfig, logger *zap.Logger) *LiveFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveFeed{
		cfg:    cfg.withDefaults(),
		logger: logger.Named("livefeed"),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
		open:    make(map[string]*buildingBar),
		history: NewStaticProvider(),
	}
}

// Start connects and launches the read loop. It returns once the initial
// connection and subscription succeed.
func (f *LiveFeed) Start(ctx context.Context) error {
	if err := f.connect(ctx); err != nil {
		return err
	}
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go f.readLoop(ctx)
	f.logger.Info("live feed started",
		zap.String("url", f.cfg.URL),
		zap.Strings("symbols", f.cfg.Symbols),
		zap.Duration("bar_interval", f.cfg.BarInterval))
	return nil
}

// Stop closes the connection and waits for the read loop to exit.
func (f *LiveFeed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()
	f.wg.Wait()
	f.flushAll()
}

// Fetch serves completed bars; the in-progress bar is never exposed.
func (f *LiveFeed) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]engine.Bar, error) {
	return f.history.Fetch(ctx, symbol, start, end)
}

func (f *LiveFeed) connect(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.cfg.URL, err)
	}
	sub := subscribeMessage{Method: "subscribe", Symbols: f.cfg.Symbols}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return fmt.Errorf("subscribe: %w", err)
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	return nil
}

func (f *LiveFeed) readLoop(ctx context.Context) {
	defer f.wg.Done()
	reconnects := 0
	for {
		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			reconnects++
			if reconnects > f.cfg.MaxReconnects {
				f.logger.Error("giving up after repeated reconnect failures", zap.Int("attempts", reconnects))
				return
			}
			f.logger.Warn("read failed, reconnecting",
				zap.Error(err), zap.Int("attempt", reconnects))
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.cfg.ReconnectInterval):
			}
			if err := f.connect(ctx); err != nil {
				f.logger.Warn("reconnect failed", zap.Error(err))
			}
			continue
		}
		reconnects = 0

		var tick tickMessage
		if err := json.Unmarshal(data, &tick); err != nil || tick.Symbol == "" {
			continue
		}
		price, err := strconv.ParseFloat(tick.Price, 64)
		if err != nil || price <= 0 {
			continue
		}
		size, err := strconv.ParseFloat(tick.Size, 64)
		if err != nil {
			size = 0
		}
		f.ingest(tick.Symbol, price, size, time.UnixMilli(tick.Time).UTC())
	}
}

// ingest folds one tick into the in-progress bar for its symbol, completing
// the bar when the tick crosses an interval boundary.
func (f *LiveFeed) ingest(symbol string, price, size float64, ts time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	slot := ts.Truncate(f.cfg.BarInterval)
	cur, ok := f.open[symbol]
	if ok && slot.After(cur.start) {
		f.completeLocked(symbol, cur)
		ok = false
	}
	if !ok {
		f.open[symbol] = &buildingBar{
			start: slot,
			open:  price, high: price, low: price, close: price,
			volume: size,
			ticks:  1,
		}
		return
	}
	if price > cur.high {
		cur.high = price
	}
	if price < cur.low {
		cur.low = price
	}
	cur.close = price
	cur.volume += size
	cur.ticks++
}

func (f *LiveFeed) completeLocked(symbol string, b *buildingBar) {
	f.history.Add(engine.Bar{
		Symbol:    symbol,
		Timestamp: b.start,
		Open:      b.open,
		High:      b.high,
		Low:       b.low,
		Close:     b.close,
		Volume:    b.volume,
	})
	delete(f.open, symbol)
}

func (f *LiveFeed) flushAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sym, b := range f.open {
		f.completeLocked(sym, b)
	}
}
