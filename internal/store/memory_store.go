package store

import (
	"context"
	"sort"
	"sync"

	"github.com/soyeahso/actionloop/internal/agent"
	"github.com/soyeahso/actionloop/internal/memory"
)

// MemoryRunStore keeps runs in process memory. Runs are lost on exit.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewMemoryRunStore creates an empty in-memory run store.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{runs: make(map[string]*Run)}
}

func (m *MemoryRunStore) BeginRun(_ context.Context, run agent.RunInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = &Run{
		ID:        run.ID,
		Task:      run.Task,
		Model:     run.Model,
		State:     string(agent.StateRunning),
		StartedAt: run.StartedAt.UTC(),
	}
	return nil
}

func (m *MemoryRunStore) RecordStep(_ context.Context, runID string, rec memory.StepRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	r.Steps = append(r.Steps, StepFromRecord(rec))
	r.StepCount = rec.Index
	return nil
}

func (m *MemoryRunStore) FinishRun(_ context.Context, res *agent.RunResult) error {
	r := RunFromResult(res)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = &r
	return nil
}

func (m *MemoryRunStore) ListRuns(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	runs := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		c := *r
		c.Steps = nil
		runs = append(runs, c)
	}
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if n := listLimit(limit); len(runs) > n {
		runs = runs[:n]
	}
	return runs, nil
}

func (m *MemoryRunStore) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	c.Steps = append([]Step(nil), r.Steps...)
	return &c, nil
}

func (m *MemoryRunStore) Close() error { return nil }
