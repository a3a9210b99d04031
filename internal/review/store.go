package review

import (
	"context"
	"fmt"
)

// Store persists what a run produces. Implementations must be safe for
// concurrent use; writes for different document/item pairs may race.
type Store interface {
	SaveDocumentCache(ctx context.Context, runID string, doc Document) (string, error)
	SavePartialResult(ctx context.Context, rec PartialRecord) error
	SaveFinalResult(ctx context.Context, rec FinalRecord) error
}

// PartialRecord is one per-document (or per-chunk) comment for one item.
type PartialRecord struct {
	RunID       string `json:"runId"`
	CacheID     string `json:"cacheId"`
	ChecklistID int    `json:"checklistId"`
	Evaluation  string `json:"evaluation,omitempty"`
	Comment     string `json:"comment"`
	TotalChunks int    `json:"totalChunks"`
	ChunkIndex  int    `json:"chunkIndex"`
	PartLabel   string `json:"partLabel,omitempty"`
}

// FinalRecord is the final evaluation of one item.
type FinalRecord struct {
	RunID       string     `json:"runId"`
	ChecklistID int        `json:"checklistId"`
	Evaluation  Evaluation `json:"evaluation"`
	Comment     string     `json:"comment"`
}

type nopStore struct{}

func (nopStore) SaveDocumentCache(_ context.Context, runID string, doc Document) (string, error) {
	return fmt.Sprintf("%s/%s", runID, doc.ID), nil
}

func (nopStore) SavePartialResult(context.Context, PartialRecord) error { return nil }

func (nopStore) SaveFinalResult(context.Context, FinalRecord) error { return nil }

func partialRecord(runID, cacheID string, r ItemResult) PartialRecord {
	return PartialRecord{
		RunID:       runID,
		CacheID:     cacheID,
		ChecklistID: r.ChecklistID,
		Evaluation:  string(r.Evaluation),
		Comment:     r.Comment,
		TotalChunks: max(r.TotalChunks, 1),
		ChunkIndex:  r.ChunkIndex,
		PartLabel:   r.PartLabel(),
	}
}
