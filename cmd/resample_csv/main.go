// Command resample_csv aggregates an OHLCV CSV to a coarser cadence, e.g.
// 1m bars to 5m. Buckets are aligned to the epoch in UTC; open is the first
// bar of the bucket, close the last, high/low the extremes, volume the sum.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"quanttrade/services/engine"
	"quanttrade/services/marketdata"
)

func main() {
	in := flag.String("in", "", "Input CSV (timestamp_ms,open,high,low,close,volume)")
	out := flag.String("out", "", "Output CSV path")
	dst := flag.String("dst", "5m", "Target cadence, e.g. 5m, 15m, 1h")
	flag.Parse()

	if *in == "" || *out == "" {
		fmt.Fprintln(os.Stderr, "usage: resample_csv -in <file> -out <file> [-dst 5m]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	interval, err := time.ParseDuration(*dst)
	if err != nil {
		panic(fmt.Errorf("parse -dst: %w", err))
	}
	if interval < time.Minute {
		panic("dst cadence must be at least one minute")
	}

	bars, err := marketdata.LoadCSV(*in, "")
	if err != nil {
		panic(err)
	}

	resampled := resample(bars, interval)
	if err := writeCSV(*out, resampled); err != nil {
		panic(err)
	}
	fmt.Printf("resampled %d bars to %d at %s\n", len(bars), len(resampled), interval)
}

func resample(bars []engine.Bar, interval time.Duration) []engine.Bar {
	buckets := make(map[int64]*engine.Bar)
	var order []int64

	for _, b := range bars {
		slot := b.Timestamp.Truncate(interval).UnixMilli()
		agg, ok := buckets[slot]
		if !ok {
			nb := b
			nb.Timestamp = time.UnixMilli(slot).UTC()
			buckets[slot] = &nb
			order = append(order, slot)
			continue
		}
		if b.High > agg.High {
			agg.High = b.High
		}
		if b.Low < agg.Low {
			agg.Low = b.Low
		}
		agg.Close = b.Close
		agg.Volume += b.Volume
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]engine.Bar, 0, len(order))
	for _, slot := range order {
		out = append(out, *buckets[slot])
	}
	return out
}

func writeCSV(path string, bars []engine.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.WriteString("timestamp_ms,open,high,low,close,volume\n"); err != nil {
		return err
	}
	for _, b := range bars {
		if _, err := fmt.Fprintf(w, "%d,%.8f,%.8f,%.8f,%.8f,%.8f\n",
			b.Timestamp.UnixMilli(), b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return err
		}
	}
	return w.Flush()
}
