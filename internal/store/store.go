package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dshills/docreview/internal/review"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
)

// Run is the bookkeeping row of one review run.
type Run struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Mode       string     `json:"mode"`
	Provider   string     `json:"provider"`
	Model      string     `json:"model"`
	Documents  int        `json:"documents"`
	Items      int        `json:"items"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Store is a review.Store that also keeps run bookkeeping and can read
// results back.
type Store interface {
	review.Store

	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, id string, status RunStatus, errMsg string) error
	GetRun(ctx context.Context, id string) (Run, error)
	// ListRuns returns the most recent runs first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	PartialResults(ctx context.Context, runID string) ([]review.PartialRecord, error)
	// FinalResults returns a run's final evaluations ordered by checklist id.
	FinalResults(ctx context.Context, runID string) ([]review.FinalRecord, error)
	Close() error
}

// Open returns a SQLite store at path, or a memory store when path is empty.
func Open(path string) (Store, error) {
	if path == "" {
		return NewMemory(), nil
	}
	return NewSQLite(path)
}

func documentKind(doc review.Document) string {
	if doc.IsImage() {
		return "image"
	}
	return "text"
}

// Track records run, calls fn and marks the run completed or failed with
// the caller-facing message of fn's error. The run row is finished even
// when ctx is cancelled.
func Track(ctx context.Context, s Store, run Run, fn func(context.Context) (*review.Report, error)) (*review.Report, error) {
	if err := s.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}

	report, err := fn(ctx)

	status, msg := StatusCompleted, ""
	if err != nil {
		status, msg = StatusFailed, review.UserMessage(err)
	}
	if ferr := s.FinishRun(context.WithoutCancel(ctx), run.ID, status, msg); ferr != nil && err == nil {
		return report, fmt.Errorf("finishing run: %w", ferr)
	}
	return report, err
}
