// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"quanttrade/services/risk"
)

type ServerConfig struct {
	HTTPPort int
	GRPCPort int
}

type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

type EngineConfig struct {
	InitialCapital  float64
	CommissionRate  float64
	SlippageRate    float64
	MinLookbackBars int
}

type WorkerConfig struct {
	Count     int
	QueueSize int
}

type LiveFeedConfig struct {
	URL     string
	Symbols []string
}

type Config struct {
	Environment string
	Server      ServerConfig
	ClickHouse  ClickHouseConfig
	Engine      EngineConfig
	Worker      WorkerConfig
	LiveFeed    LiveFeedConfig
	RiskLimits  risk.Limits
}

// Load reads .env if present, then the environment. Every field has a
// working default so a bare `go run` starts against localhost.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: env("ENVIRONMENT", "development"),
		Server: ServerConfig{
			HTTPPort: envInt("HTTP_PORT", 8080),
			GRPCPort: envInt("GRPC_PORT", 9090),
		},
		ClickHouse: ClickHouseConfig{
			Addr:     env("CLICKHOUSE_ADDR", "localhost:9000"),
			Database: env("CLICKHOUSE_DATABASE", "quanttrade"),
			Username: env("CLICKHOUSE_USER", "default"),
			Password: env("CLICKHOUSE_PASSWORD", ""),
		},
		Engine: EngineConfig{
			InitialCapital:  envFloat("ENGINE_INITIAL_CAPITAL", 100000),
			CommissionRate:  envFloat("ENGINE_COMMISSION_RATE", 0.001),
			SlippageRate:    envFloat("ENGINE_SLIPPAGE_RATE", 0.0005),
			MinLookbackBars: envInt("ENGINE_MIN_LOOKBACK_BARS", 50),
		},
		Worker: WorkerConfig{
			Count:     envInt("WORKER_COUNT", 4),
			QueueSize: envInt("WORKER_QUEUE_SIZE", 64),
		},
		LiveFeed: LiveFeedConfig{
			URL:     env("LIVE_FEED_URL", ""),
			Symbols: envList("LIVE_FEED_SYMBOLS", "BTCUSDT,ETHUSDT"),
		},
		RiskLimits: risk.Limits{
			MaxPositionSize:  envFloat("RISK_MAX_POSITION_SIZE", 0.10),
			MaxPortfolioRisk: envFloat("RISK_MAX_PORTFOLIO_RISK", 0.50),
			MaxDailyLoss:     envFloat("RISK_MAX_DAILY_LOSS", 0.03),
			MaxDrawdown:      envFloat("RISK_MAX_DRAWDOWN", 0.20),
			MaxLeverage:      envFloat("RISK_MAX_LEVERAGE", 2.0),
			VaRConfidence:    envFloat("RISK_VAR_CONFIDENCE", 0.95),
		},
	}

	if cfg.Server.HTTPPort == cfg.Server.GRPCPort {
		return nil, fmt.Errorf("HTTP_PORT and GRPC_PORT must differ (both %d)", cfg.Server.HTTPPort)
	}
	return cfg, nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envList(key, def string) []string {
	raw := env(key, def)
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
