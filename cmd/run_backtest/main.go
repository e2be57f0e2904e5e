// Command run_backtest runs a strategy over a local CSV of OHLCV bars and
// prints the performance report. No server or ClickHouse required.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"quanttrade/services/analyzer"
	"quanttrade/services/engine"
	"quanttrade/services/marketdata"
	"quanttrade/services/risk"
	"quanttrade/strategies"
)

func main() {
	csvPath := flag.String("csv", "", "Path to local CSV (timestamp_ms,open,high,low,close,volume)")
	symbol := flag.String("symbol", "BTCUSDT", "Trading symbol")
	strategyName := flag.String("strategy", strategies.NameEMACross, "Strategy name (ema_cross, momentum)")
	params := flag.String("params", "", "Strategy parameters as k=v,k=v")
	capital := flag.Float64("capital", 100000, "Initial capital")
	commission := flag.Float64("commission", 0.001, "Commission rate per side")
	slippage := flag.Float64("slippage", 0.0005, "Slippage rate")
	lookback := flag.Int("lookback", engine.DefaultMinLookbackBars, "Minimum bars before signals")
	tradesOut := flag.String("trades", "", "Optional path to write the trade list as CSV")
	cadence := flag.Duration("cadence", 0, "Expected bar cadence for gap detection, e.g. 1h (0 disables)")
	from := flag.String("from", "", "Start UTC (RFC3339), default: full file")
	to := flag.String("to", "", "End UTC (RFC3339), default: full file")
	verbose := flag.Bool("verbose", false, "Enable engine debug logging")
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "usage: run_backtest -csv <file> [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			panic(err)
		}
	}
	defer logger.Sync()

	bars, err := marketdata.LoadCSV(*csvPath, *symbol)
	if err != nil {
		panic(err)
	}
	fmt.Printf("Loaded %d bars from %s\n", len(bars), *csvPath)

	if *cadence > 0 {
		for _, gap := range marketdata.DetectGaps(bars, *cadence) {
			fmt.Printf("WARNING: %d missing bars between %s and %s\n",
				gap.Missing, gap.From.Format(time.RFC3339), gap.To.Format(time.RFC3339))
		}
	}

	cfg := engine.BacktestConfig{
		InitialCapital:  *capital,
		CommissionRate:  *commission,
		SlippageRate:    *slippage,
		MinLookbackBars: *lookback,
		StartDate:       bars[0].Timestamp,
		EndDate:         bars[len(bars)-1].Timestamp.Add(time.Millisecond),
	}
	if *from != "" {
		cfg.StartDate, err = time.Parse(time.RFC3339, *from)
		if err != nil {
			panic(fmt.Errorf("parse -from: %w", err))
		}
	}
	if *to != "" {
		cfg.EndDate, err = time.Parse(time.RFC3339, *to)
		if err != nil {
			panic(fmt.Errorf("parse -to: %w", err))
		}
	}

	rm := risk.NewManager(risk.DefaultLimits(), logger)
	strategy, err := strategies.New(*strategyName, parseParams(*params), rm)
	if err != nil {
		panic(err)
	}

	result, err := engine.New(cfg, rm, logger).Run(strategy, bars)
	if err != nil {
		panic(err)
	}

	fmt.Print(analyzer.New().GenerateReport(result))

	if *tradesOut != "" {
		if err := writeTradesCSV(*tradesOut, result.Trades); err != nil {
			panic(err)
		}
		fmt.Printf("Wrote %d trades to %s\n", len(result.Trades), *tradesOut)
	}
}

func writeTradesCSV(path string, trades []engine.Trade) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString("symbol,side,entry_time,exit_time,entry_price,exit_price,quantity,commission,slippage,pnl,pnl_percent,exit_reason\n"); err != nil {
		return err
	}
	for _, tr := range trades {
		if _, err := fmt.Fprintf(w, "%s,%s,%s,%s,%.8f,%.8f,%.8f,%.8f,%.8f,%.8f,%.4f,%s\n",
			tr.Symbol, tr.Side,
			tr.EntryTime.Format(time.RFC3339), tr.ExitTime.Format(time.RFC3339),
			tr.EntryPrice, tr.ExitPrice, tr.Quantity,
			tr.Commission, tr.Slippage, tr.PnL, tr.PnLPercent,
			tr.Metadata["exit_reason"]); err != nil {
			return err
		}
	}
	return w.Flush()
}

// parseParams turns "ema_fast=12,ema_slow=26" into a parameter map.
func parseParams(s string) map[string]float64 {
	out := make(map[string]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(kv[1]), 64)
		if err != nil {
			continue
		}
		out[strings.TrimSpace(kv[0])] = v
	}
	return out
}
