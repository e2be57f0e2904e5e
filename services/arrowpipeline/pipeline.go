// Package arrowpipeline serializes bar series and equity curves to Apache
// Arrow IPC streams, the interchange format used by the export API for
// analysis tooling.
package arrowpipeline

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"quanttrade/services/engine"
)

// Pipeline converts between native structs and Arrow IPC bytes. It owns a Go
// allocator; a zero-value Pipeline is not usable, construct with NewPipeline.
type Pipeline struct {
	pool memory.Allocator
}

func NewPipeline() *Pipeline {
	return &Pipeline{pool: memory.NewGoAllocator()}
}

var barSchema = arrow.NewSchema([]arrow.Field{
	{Name: "symbol", Type: arrow.BinaryTypes.String},
	{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var equitySchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp_ms", Type: arrow.PrimitiveTypes.Uint64},
	{Name: "portfolio_value", Type: arrow.PrimitiveTypes.Float64},
	{Name: "cash", Type: arrow.PrimitiveTypes.Float64},
	{Name: "positions_value", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// BarsToArrow serializes a bar series to one Arrow IPC stream.
func (p *Pipeline) BarsToArrow(bars []engine.Bar) ([]byte, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("no bars to convert")
	}

	symbolB := array.NewStringBuilder(p.pool)
	defer symbolB.Release()
	tsB := array.NewUint64Builder(p.pool)
	defer tsB.Release()
	openB := array.NewFloat64Builder(p.pool)
	defer openB.Release()
	highB := array.NewFloat64Builder(p.pool)
	defer highB.Release()
	lowB := array.NewFloat64Builder(p.pool)
	defer lowB.Release()
	closeB := array.NewFloat64Builder(p.pool)
	defer closeB.Release()
	volumeB := array.NewFloat64Builder(p.pool)
	defer volumeB.Release()

	for _, b := range bars {
		symbolB.Append(b.Symbol)
		tsB.Append(uint64(b.Timestamp.UnixMilli()))
		openB.Append(b.Open)
		highB.Append(b.High)
		lowB.Append(b.Low)
		closeB.Append(b.Close)
		volumeB.Append(b.Volume)
	}

	cols := []arrow.Array{
		symbolB.NewArray(), tsB.NewArray(),
		openB.NewArray(), highB.NewArray(), lowB.NewArray(), closeB.NewArray(),
		volumeB.NewArray(),
	}
	record := array.NewRecord(barSchema, cols, int64(len(bars)))
	defer record.Release()
	for _, col := range cols {
		defer col.Release()
	}

	return writeIPC(barSchema, record)
}

// BarsFromArrow deserializes an IPC stream produced by BarsToArrow.
func (p *Pipeline) BarsFromArrow(data []byte) ([]engine.Bar, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(p.pool))
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer reader.Release()

	var out []engine.Bar
	for reader.Next() {
		rec := reader.Record()
		symbols := rec.Column(0).(*array.String)
		ts := rec.Column(1).(*array.Uint64)
		opens := rec.Column(2).(*array.Float64)
		highs := rec.Column(3).(*array.Float64)
		lows := rec.Column(4).(*array.Float64)
		closes := rec.Column(5).(*array.Float64)
		volumes := rec.Column(6).(*array.Float64)

		for i := 0; i < int(rec.NumRows()); i++ {
			out = append(out, engine.Bar{
				Symbol:    symbols.Value(i),
				Timestamp: time.UnixMilli(int64(ts.Value(i))).UTC(),
				Open:      opens.Value(i),
				High:      highs.Value(i),
				Low:       lows.Value(i),
				Close:     closes.Value(i),
				Volume:    volumes.Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return out, nil
}

// EquityCurveToArrow serializes an equity curve for downstream analysis.
func (p *Pipeline) EquityCurveToArrow(curve []engine.EquityPoint) ([]byte, error) {
	if len(curve) == 0 {
		return nil, fmt.Errorf("no equity points to convert")
	}

	tsB := array.NewUint64Builder(p.pool)
	defer tsB.Release()
	valueB := array.NewFloat64Builder(p.pool)
	defer valueB.Release()
	cashB := array.NewFloat64Builder(p.pool)
	defer cashB.Release()
	posB := array.NewFloat64Builder(p.pool)
	defer posB.Release()

	for _, pt := range curve {
		tsB.Append(uint64(pt.Timestamp.UnixMilli()))
		valueB.Append(pt.PortfolioValue)
		cashB.Append(pt.Cash)
		posB.Append(pt.PositionsValue)
	}

	cols := []arrow.Array{tsB.NewArray(), valueB.NewArray(), cashB.NewArray(), posB.NewArray()}
	record := array.NewRecord(equitySchema, cols, int64(len(curve)))
	defer record.Release()
	for _, col := range cols {
		defer col.Release()
	}

	return writeIPC(equitySchema, record)
}

func writeIPC(schema *arrow.Schema, record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}
