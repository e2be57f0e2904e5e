// Package clickhouse is the persistence layer: OHLCV bars plus durable
// workflow runs and their event history, all in one ClickHouse database.
package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	chproto "github.com/ClickHouse/clickhouse-go/v2/lib/proto"

	"go.uber.org/zap"

	"quanttrade/services/engine"
)

type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// Client wraps one native-protocol connection. Safe for concurrent use; the
// driver pools underneath.
type Client struct {
	conn   clickhouse.Conn
	db     string
	logger *zap.Logger
}

func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": uint64(0),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %s", explainError(err))
	}
	return &Client{conn: conn, db: cfg.Database, logger: logger.Named("clickhouse")}, nil
}

func (c *Client) Close() error { return c.conn.Close() }

// EnsureSchema creates the database and all tables. Idempotent; called once
// at startup.
func (c *Client) EnsureSchema(ctx context.Context) error {
	ddls := []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.db),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.bars (
				symbol String,
				timestamp DateTime64(3),
				open Float64,
				high Float64,
				low Float64,
				close Float64,
				volume Float64,
				ingested_at DateTime64(3),
				version UInt64
			)
			ENGINE = ReplacingMergeTree(version)
			ORDER BY (symbol, timestamp)
			SETTINGS index_granularity = 8192
		`, c.db),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.workflow_runs (
				id String,
				workflow LowCardinality(String),
				input String,
				status LowCardinality(String),
				result String,
				error String,
				started_at DateTime64(3),
				updated_at DateTime64(3)
			)
			ENGINE = ReplacingMergeTree(updated_at)
			ORDER BY id
		`, c.db),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s.workflow_history (
				workflow_id String,
				seq UInt32,
				event_type LowCardinality(String),
				name String,
				attempts UInt32,
				payload String,
				recorded_at DateTime64(3)
			)
			ENGINE = ReplacingMergeTree(recorded_at)
			ORDER BY (workflow_id, seq)
		`, c.db),
	}
	for _, ddl := range ddls {
		if err := c.conn.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("ensure schema: %s", explainError(err))
		}
	}
	return nil
}

// InsertBars batch-inserts bars. All rows share one version so re-ingesting
// the same file is idempotent under ReplacingMergeTree.
func (c *Client) InsertBars(ctx context.Context, bars []engine.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	batch, err := c.conn.PrepareBatch(ctx,
		fmt.Sprintf("INSERT INTO %s.bars SETTINGS insert_deduplicate=1", c.db))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, b := range bars {
		if err := batch.Append(
			b.Symbol, b.Timestamp,
			b.Open, b.High, b.Low, b.Close, b.Volume,
			now, ver,
		); err != nil {
			return fmt.Errorf("batch append: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("batch send: %s", explainError(err))
	}
	c.logger.Info("bars inserted", zap.Int("rows", len(bars)), zap.String("symbol", bars[0].Symbol))
	return nil
}

// QueryBars returns bars for [start, end), oldest first, deduplicated.
func (c *Client) QueryBars(ctx context.Context, symbol string, start, end time.Time) ([]engine.Bar, error) {
	q := fmt.Sprintf(`
		SELECT symbol, timestamp, open, high, low, close, volume
		FROM %s.bars FINAL
		WHERE symbol = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp
	`, c.db)
	rows, err := c.conn.Query(ctx, q, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query bars: %s", explainError(err))
	}
	defer rows.Close()

	var out []engine.Bar
	for rows.Next() {
		var b engine.Bar
		if err := rows.Scan(&b.Symbol, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Fetch makes Client a marketdata.Provider.
func (c *Client) Fetch(ctx context.Context, symbol string, start, end time.Time) ([]engine.Bar, error) {
	return c.QueryBars(ctx, symbol, start, end)
}

func explainError(err error) string {
	var ex *chproto.Exception
	if errors.As(err, &ex) {
		return fmt.Sprintf("ClickHouse [%d] %s (%s)", ex.Code, ex.Message, ex.Name)
	}
	return err.Error()
}
