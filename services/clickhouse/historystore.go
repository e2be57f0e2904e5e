package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"quanttrade/services/workflow"
)

// HistoryStore is the durable workflow.HistoryStore. Run updates are new
// versions under ReplacingMergeTree, so reads go through FINAL; history
// events are append-only by construction.
type HistoryStore struct {
	client *Client
}

func NewHistoryStore(client *Client) *HistoryStore {
	return &HistoryStore{client: client}
}

func (s *HistoryStore) CreateRun(ctx context.Context, run *workflow.Run) error {
	return s.insertRun(ctx, run)
}

func (s *HistoryStore) UpdateRun(ctx context.Context, run *workflow.Run) error {
	return s.insertRun(ctx, run)
}

func (s *HistoryStore) insertRun(ctx context.Context, run *workflow.Run) error {
	q := fmt.Sprintf(`
		INSERT INTO %s.workflow_runs
		(id, workflow, input, status, result, error, started_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, s.client.db)
	err := s.client.conn.Exec(ctx, q,
		run.ID, run.Workflow, string(run.Input), string(run.Status),
		string(run.Result), run.Error, run.StartedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %s", run.ID, explainError(err))
	}
	return nil
}

func (s *HistoryStore) GetRun(ctx context.Context, id string) (*workflow.Run, error) {
	q := fmt.Sprintf(`
		SELECT id, workflow, input, status, result, error, started_at, updated_at
		FROM %s.workflow_runs FINAL
		WHERE id = ?
	`, s.client.db)
	row := s.client.conn.QueryRow(ctx, q, id)

	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return run, nil
}

func (s *HistoryStore) ListRuns(ctx context.Context) ([]*workflow.Run, error) {
	q := fmt.Sprintf(`
		SELECT id, workflow, input, status, result, error, started_at, updated_at
		FROM %s.workflow_runs FINAL
		ORDER BY started_at
	`, s.client.db)
	rows, err := s.client.conn.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list runs: %s", explainError(err))
	}
	defer rows.Close()

	var out []*workflow.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *HistoryStore) AppendEvent(ctx context.Context, ev workflow.HistoryEvent) error {
	q := fmt.Sprintf(`
		INSERT INTO %s.workflow_history
		(workflow_id, seq, event_type, name, attempts, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.client.db)
	err := s.client.conn.Exec(ctx, q,
		ev.WorkflowID, uint32(ev.Seq), string(ev.Type), ev.Name,
		uint32(ev.Attempts), string(ev.Payload), ev.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("append event %s/%d: %s", ev.WorkflowID, ev.Seq, explainError(err))
	}
	return nil
}

func (s *HistoryStore) LoadEvents(ctx context.Context, workflowID string) ([]workflow.HistoryEvent, error) {
	q := fmt.Sprintf(`
		SELECT workflow_id, seq, event_type, name, attempts, payload, recorded_at
		FROM %s.workflow_history FINAL
		WHERE workflow_id = ?
		ORDER BY seq
	`, s.client.db)
	rows, err := s.client.conn.Query(ctx, q, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load events %s: %s", workflowID, explainError(err))
	}
	defer rows.Close()

	var out []workflow.HistoryEvent
	for rows.Next() {
		var (
			ev       workflow.HistoryEvent
			seq      uint32
			evType   string
			attempts uint32
			payload  string
		)
		if err := rows.Scan(&ev.WorkflowID, &seq, &evType, &ev.Name, &attempts, &payload, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Seq = int(seq)
		ev.Type = workflow.EventType(evType)
		ev.Attempts = int(attempts)
		ev.Payload = json.RawMessage(payload)
		out = append(out, ev)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*workflow.Run, error) {
	var (
		run    workflow.Run
		input  string
		status string
		result string
	)
	if err := row.Scan(&run.ID, &run.Workflow, &input, &status, &result, &run.Error, &run.StartedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}
	run.Input = json.RawMessage(input)
	run.Status = workflow.Status(status)
	if result != "" {
		run.Result = json.RawMessage(result)
	}
	return &run, nil
}
