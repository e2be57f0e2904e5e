package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// HistoryStore persists runs and their event logs. The ClickHouse-backed
// implementation lives in services/clickhouse; MemoryStore backs tests and
// single-process deployments.
type HistoryStore interface {
	CreateRun(ctx context.Context, run *Run) error
	UpdateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context) ([]*Run, error)
	AppendEvent(ctx context.Context, ev HistoryEvent) error
	LoadEvents(ctx context.Context, workflowID string) ([]HistoryEvent, error)
}

// MemoryStore is an in-process HistoryStore.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]Run
	events map[string][]HistoryEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]Run),
		events: make(map[string][]HistoryEvent),
	}
}

func (s *MemoryStore) CreateRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run %s already exists", run.ID)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) UpdateRun(_ context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; !exists {
		return fmt.Errorf("run %s not found", run.ID)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s not found", id)
	}
	return &run, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Run, 0, len(s.runs))
	for id := range s.runs {
		run := s.runs[id]
		out = append(out, &run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, ev HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.WorkflowID] = append(s.events[ev.WorkflowID], ev)
	return nil
}

func (s *MemoryStore) LoadEvents(_ context.Context, workflowID string) ([]HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := s.events[workflowID]
	out := make([]HistoryEvent, len(events))
	copy(out, events)
	return out, nil
}
