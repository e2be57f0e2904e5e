package clickhouse

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	chproto "github.com/ClickHouse/clickhouse-go/v2/lib/proto"

	"quanttrade/services/workflow"
)

type fakeRow struct {
	vals []any
	err  error
}

func (f fakeRow) Scan(dest ...any) error {
	if f.err != nil {
		return f.err
	}
	if len(dest) != len(f.vals) {
		return fmt.Errorf("scan arity %d != %d", len(dest), len(f.vals))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = f.vals[i].(string)
		case *time.Time:
			*p = f.vals[i].(time.Time)
		default:
			return fmt.Errorf("unsupported scan dest %T", d)
		}
	}
	return nil
}

func TestScanRun(t *testing.T) {
	started := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	updated := started.Add(time.Minute)
	row := fakeRow{vals: []any{
		"wf-1", "strategy_backtest", `{"symbol":"BTCUSDT"}`,
		"completed", `{"ok":true}`, "",
		started, updated,
	}}

	run, err := scanRun(row)
	if err != nil {
		t.Fatal(err)
	}
	if run.ID != "wf-1" || run.Workflow != "strategy_backtest" {
		t.Errorf("identity = %s/%s not scanned", run.ID, run.Workflow)
	}
	if run.Status != workflow.StatusCompleted {
		t.Errorf("status = %s, want completed", run.Status)
	}
	if string(run.Input) != `{"symbol":"BTCUSDT"}` || string(run.Result) != `{"ok":true}` {
		t.Errorf("payloads not preserved: input=%s result=%s", run.Input, run.Result)
	}
	if !run.StartedAt.Equal(started) || !run.UpdatedAt.Equal(updated) {
		t.Errorf("timestamps not preserved: %v / %v", run.StartedAt, run.UpdatedAt)
	}
}

func TestScanRunEmptyResultIsNil(t *testing.T) {
	started := time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC)
	row := fakeRow{vals: []any{
		"wf-2", "risk_monitoring", `{}`,
		"running", "", "",
		started, started,
	}}
	run, err := scanRun(row)
	if err != nil {
		t.Fatal(err)
	}
	// An unfinished run has no result; callers must see nil, not "".
	if run.Result != nil {
		t.Errorf("result = %q, want nil", run.Result)
	}
}

func TestScanRunPropagatesErrors(t *testing.T) {
	if _, err := scanRun(fakeRow{err: errors.New("driver broke")}); err == nil {
		t.Fatal("scan error swallowed")
	}
}

func TestExplainError(t *testing.T) {
	ex := &chproto.Exception{Code: 60, Name: "DB::Exception", Message: "Table default.bars does not exist"}
	got := explainError(fmt.Errorf("query: %w", ex))
	if !strings.Contains(got, "[60]") || !strings.Contains(got, "does not exist") {
		t.Errorf("explainError = %q, want code and message surfaced", got)
	}

	plain := errors.New("connection refused")
	if got := explainError(plain); got != "connection refused" {
		t.Errorf("plain error = %q, want passthrough", got)
	}
}
