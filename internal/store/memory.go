package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/docreview/internal/review"
)

type cachedDocument struct {
	runID string
	doc   review.Document
}

// Memory is an in-process Store.
type Memory struct {
	mu       sync.RWMutex
	runs     map[string]Run
	docs     map[string]cachedDocument
	partials map[string][]review.PartialRecord
	finals   map[string]map[int]review.FinalRecord
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		runs:     make(map[string]Run),
		docs:     make(map[string]cachedDocument),
		partials: make(map[string][]review.PartialRecord),
		finals:   make(map[string]map[int]review.FinalRecord),
	}
}

func (m *Memory) SaveDocumentCache(_ context.Context, runID string, doc review.Document) (string, error) {
	id := uuid.NewString()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[id] = cachedDocument{runID: runID, doc: doc}
	return id, nil
}

func (m *Memory) SavePartialResult(_ context.Context, rec review.PartialRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[rec.CacheID]; !ok {
		return fmt.Errorf("unknown document cache %q", rec.CacheID)
	}
	m.partials[rec.RunID] = append(m.partials[rec.RunID], rec)
	return nil
}

func (m *Memory) SaveFinalResult(_ context.Context, rec review.FinalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID, ok := m.finals[rec.RunID]
	if !ok {
		byID = make(map[int]review.FinalRecord)
		m.finals[rec.RunID] = byID
	}
	byID[rec.ChecklistID] = rec
	return nil
}

func (m *Memory) CreateRun(_ context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %q already exists", run.ID)
	}
	if run.Status == "" {
		run.Status = StatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) FinishRun(_ context.Context, id string, status RunStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	run.Status = status
	run.Error = errMsg
	run.FinishedAt = &now
	m.runs[id] = run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]Run, error) {
	m.mu.RLock()
	runs := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *Memory) PartialResults(_ context.Context, runID string) ([]review.PartialRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]review.PartialRecord, len(m.partials[runID]))
	copy(out, m.partials[runID])
	return out, nil
}

func (m *Memory) FinalResults(_ context.Context, runID string) ([]review.FinalRecord, error) {
	m.mu.RLock()
	out := make([]review.FinalRecord, 0, len(m.finals[runID]))
	for _, rec := range m.finals[runID] {
		out = append(out, rec)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ChecklistID < out[j].ChecklistID })
	return out, nil
}

// Document returns a cached document by cache id.
func (m *Memory) Document(cacheID string) (review.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.docs[cacheID]
	return c.doc, ok
}

func (m *Memory) Close() error { return nil }
