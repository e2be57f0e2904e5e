package marketdata

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"quanttrade/services/engine"
)

// LoadCSV reads OHLCV bars from a CSV file with columns
// timestamp_ms,open,high,low,close,volume. Exchange exports are sometimes
// UTF-16 with a BOM, so the reader sniffs the first two bytes and decodes
// accordingly. Rows that fail to parse are skipped; the result is sorted and
// deduplicated by timestamp (last row wins).
func LoadCSV(path, symbol string) ([]engine.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	var reader io.Reader = f
	br := bufio.NewReader(f)
	if head, _ := br.Peek(2); len(head) >= 2 &&
		((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek csv: %w", err)
		}
		reader = transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	} else {
		reader = br
	}

	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var bars []engine.Bar
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line++
			continue
		}
		line++
		if len(rec) < 6 {
			continue
		}
		tsField := strings.TrimPrefix(strings.TrimSpace(rec[0]), "\ufeff")
		if line == 1 && strings.HasPrefix(strings.ToLower(tsField), "timestamp") {
			continue
		}
		tsMillis, err := strconv.ParseInt(tsField, 10, 64)
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		high, err2 := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		low, err3 := strconv.ParseFloat(strings.TrimSpace(rec[3]), 64)
		closePx, err4 := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		volume, err := strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
		if err != nil {
			volume = 0
		}
		bars = append(bars, engine.Bar{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(tsMillis).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    volume,
		})
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no parseable bars in %s", path)
	}

	// Stable sort keeps file order among equal timestamps so the last row wins.
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp.Before(bars[j].Timestamp) })
	uniq := bars[:0]
	for _, b := range bars {
		if len(uniq) > 0 && uniq[len(uniq)-1].Timestamp.Equal(b.Timestamp) {
			uniq[len(uniq)-1] = b
			continue
		}
		uniq = append(uniq, b)
	}
	return uniq, nil
}
