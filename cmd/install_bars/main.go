// Command install_bars bulk-loads OHLCV bars into ClickHouse, either from
// Binance monthly kline archives or from a local CSV. Re-running over the
// same months is idempotent: every row carries a version and the bars table
// deduplicates under ReplacingMergeTree.
package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"go.uber.org/zap"

	"quanttrade/services/clickhouse"
	"quanttrade/services/config"
	"quanttrade/services/engine"
	"quanttrade/services/marketdata"
)

const binanceBaseURL = "https://data.binance.vision"

func main() {
	symbols := flag.String("symbols", "BTCUSDT,ETHUSDT", "Comma-separated symbols")
	from := flag.String("from", "", "First month to ingest (YYYY-MM)")
	to := flag.String("to", "", "Last month to ingest (YYYY-MM)")
	csvPath := flag.String("csv", "", "Ingest a local CSV instead of downloading (single symbol)")
	baseURL := flag.String("base-url", binanceBaseURL, "Binance data archive base URL")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()
	ch, err := clickhouse.Open(ctx, clickhouse.Config{
		Addr:     cfg.ClickHouse.Addr,
		Database: cfg.ClickHouse.Database,
		Username: cfg.ClickHouse.Username,
		Password: cfg.ClickHouse.Password,
	}, logger)
	if err != nil {
		panic(err)
	}
	defer ch.Close()
	if err := ch.EnsureSchema(ctx); err != nil {
		panic(err)
	}

	if *csvPath != "" {
		syms := splitSymbols(*symbols)
		if len(syms) != 1 {
			panic("-csv requires exactly one symbol")
		}
		bars, err := marketdata.LoadCSV(*csvPath, syms[0])
		if err != nil {
			panic(err)
		}
		if err := ch.InsertBars(ctx, bars); err != nil {
			panic(err)
		}
		fmt.Printf("inserted %d bars for %s from %s\n", len(bars), syms[0], *csvPath)
		return
	}

	if *from == "" || *to == "" {
		fmt.Fprintln(os.Stderr, "usage: install_bars -from YYYY-MM -to YYYY-MM [-symbols ...] | -csv <file> -symbols <one>")
		flag.PrintDefaults()
		os.Exit(2)
	}
	months, err := monthRange(*from, *to)
	if err != nil {
		panic(err)
	}

	http := resty.New().SetTimeout(3 * time.Minute).SetHeader("User-Agent", "quanttrade-install-bars/1.0")
	for _, sym := range splitSymbols(*symbols) {
		fmt.Printf("==> %s | monthly 1m klines %s to %s\n", sym, *from, *to)
		for _, month := range months {
			n, err := ingestMonth(ctx, ch, http, *baseURL, sym, month)
			if err != nil {
				// One bad month should not sink the whole run.
				logger.Warn("month ingest failed",
					zap.String("symbol", sym),
					zap.String("month", month.Format("2006-01")),
					zap.Error(err),
				)
				continue
			}
			fmt.Printf("    %s: %d bars\n", month.Format("2006-01"), n)
		}
	}
	fmt.Println("done")
}

func splitSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func monthRange(from, to string) ([]time.Time, error) {
	start, err := time.Parse("2006-01", from)
	if err != nil {
		return nil, fmt.Errorf("parse -from: %w", err)
	}
	end, err := time.Parse("2006-01", to)
	if err != nil {
		return nil, fmt.Errorf("parse -to: %w", err)
	}
	if end.Before(start) {
		return nil, errors.New("-to is before -from")
	}
	var out []time.Time
	for cur := start; !cur.After(end); cur = cur.AddDate(0, 1, 0) {
		out = append(out, cur)
	}
	return out, nil
}

func ingestMonth(ctx context.Context, ch *clickhouse.Client, http *resty.Client, baseURL, symbol string, month time.Time) (int, error) {
	url := fmt.Sprintf("%s/data/spot/monthly/klines/%s/1m/%s-1m-%04d-%02d.zip",
		baseURL, symbol, symbol, month.Year(), int(month.Month()))

	resp, err := http.R().SetContext(ctx).Get(url)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", url, err)
	}
	if resp.StatusCode() != 200 {
		return 0, fmt.Errorf("GET %s: status %d", url, resp.StatusCode())
	}

	bars, err := parseKlineZip(resp.Body(), symbol)
	if err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}
	if err := ch.InsertBars(ctx, bars); err != nil {
		return 0, err
	}
	return len(bars), nil
}

// parseKlineZip extracts bars from a Binance monthly kline archive. Columns:
// open time (ms), open, high, low, close, volume, close time, quote volume,
// trades, taker base, taker quote, ignore.
func parseKlineZip(data []byte, symbol string) ([]engine.Bar, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	var entry io.ReadCloser
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			if entry, err = f.Open(); err != nil {
				return nil, fmt.Errorf("open zip entry: %w", err)
			}
			break
		}
	}
	if entry == nil {
		return nil, errors.New("no csv in archive")
	}
	defer entry.Close()

	r := csv.NewReader(entry)
	r.FieldsPerRecord = -1

	var bars []engine.Bar
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read kline csv: %w", err)
		}
		if len(rec) < 6 {
			continue
		}
		openMs, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		high, err2 := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		low, err3 := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		closePx, err4 := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		volume, err5 := strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		bars = append(bars, engine.Bar{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(openMs).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    volume,
		})
	}
	return bars, nil
}
