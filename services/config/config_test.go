package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != 8080 || cfg.Server.GRPCPort != 9090 {
		t.Errorf("ports = %d/%d, want 8080/9090", cfg.Server.HTTPPort, cfg.Server.GRPCPort)
	}
	if cfg.ClickHouse.Addr != "localhost:9000" || cfg.ClickHouse.Database != "quanttrade" {
		t.Errorf("clickhouse defaults wrong: %+v", cfg.ClickHouse)
	}
	if cfg.Engine.InitialCapital != 100000 || cfg.Engine.MinLookbackBars != 50 {
		t.Errorf("engine defaults wrong: %+v", cfg.Engine)
	}
	if cfg.RiskLimits.MaxPositionSize != 0.10 || cfg.RiskLimits.VaRConfidence != 0.95 {
		t.Errorf("risk defaults wrong: %+v", cfg.RiskLimits)
	}
	if len(cfg.LiveFeed.Symbols) != 2 {
		t.Errorf("symbols = %v, want two defaults", cfg.LiveFeed.Symbols)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8181")
	t.Setenv("CLICKHOUSE_ADDR", "ch:9000")
	t.Setenv("ENGINE_COMMISSION_RATE", "0.002")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("LIVE_FEED_SYMBOLS", " BTCUSDT , SOLUSDT ,")
	t.Setenv("RISK_MAX_LEVERAGE", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.HTTPPort != 8181 {
		t.Errorf("http port = %d, want 8181", cfg.Server.HTTPPort)
	}
	if cfg.ClickHouse.Addr != "ch:9000" {
		t.Errorf("clickhouse addr = %q", cfg.ClickHouse.Addr)
	}
	if cfg.Engine.CommissionRate != 0.002 {
		t.Errorf("commission = %v, want 0.002", cfg.Engine.CommissionRate)
	}
	if cfg.Worker.Count != 8 {
		t.Errorf("worker count = %d, want 8", cfg.Worker.Count)
	}
	if len(cfg.LiveFeed.Symbols) != 2 || cfg.LiveFeed.Symbols[1] != "SOLUSDT" {
		t.Errorf("symbols = %v, want trimmed two-element list", cfg.LiveFeed.Symbols)
	}
	if cfg.RiskLimits.MaxLeverage != 3 {
		t.Errorf("leverage = %v, want 3", cfg.RiskLimits.MaxLeverage)
	}
}

func TestLoadRejectsPortCollision(t *testing.T) {
	t.Setenv("HTTP_PORT", "7000")
	t.Setenv("GRPC_PORT", "7000")
	if _, err := Load(); err == nil {
		t.Fatal("identical HTTP and gRPC ports accepted")
	}
}

func TestEnvHelpersIgnoreMalformedValues(t *testing.T) {
	t.Setenv("WORKER_COUNT", "many")
	t.Setenv("ENGINE_SLIPPAGE_RATE", "lots")
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Worker.Count != 4 {
		t.Errorf("malformed int fell through to %d, want default 4", cfg.Worker.Count)
	}
	if cfg.Engine.SlippageRate != 0.0005 {
		t.Errorf("malformed float fell through to %v, want default 0.0005", cfg.Engine.SlippageRate)
	}
}
