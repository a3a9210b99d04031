package review

import (
	"fmt"
	"unicode/utf8"

	"github.com/dshills/docreview/internal/providers"
)

// Mode selects the review pipeline.
type Mode string

const (
	// ModeSmall reviews all documents together in one unit per category.
	ModeSmall Mode = "small"
	// ModeLarge reviews each document on its own, then consolidates.
	ModeLarge Mode = "large"
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSmall:
		return ModeSmall, nil
	case ModeLarge:
		return ModeLarge, nil
	default:
		return "", fmt.Errorf("unknown document mode %q (want small or large)", s)
	}
}

// Evaluation is the label the model assigns to one checklist item.
type Evaluation string

const (
	EvaluationPass          Evaluation = "pass"
	EvaluationPartial       Evaluation = "partial"
	EvaluationFail          Evaluation = "fail"
	EvaluationNotApplicable Evaluation = "n/a"
)

// EvaluationRank returns a numeric rank for sorting (higher = worse).
func EvaluationRank(e Evaluation) int {
	switch e {
	case EvaluationFail:
		return 3
	case EvaluationPartial:
		return 2
	case EvaluationPass:
		return 1
	default:
		return 0
	}
}

// MeetsThreshold returns true if the evaluation is at or worse than the threshold.
func MeetsThreshold(e Evaluation, threshold string) bool {
	if threshold == "none" || threshold == "" {
		return false
	}
	return EvaluationRank(e) >= EvaluationRank(Evaluation(threshold))
}

// Document is one input to a review. Content is either text or an ordered
// list of page images, never both.
type Document struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Text   string            `json:"text,omitempty"`
	Images []providers.Image `json:"images,omitempty"`
}

// IsImage reports whether the document content is a list of page images.
func (d Document) IsImage() bool {
	return len(d.Images) > 0
}

// Len returns the length of the content in the unit used for chunking:
// runes for text, pages for images.
func (d Document) Len() int {
	if d.IsImage() {
		return len(d.Images)
	}
	return utf8.RuneCountInString(d.Text)
}

// ChecklistItem is one evaluation criterion. Evaluation and Comment are only
// filled in by Report.Apply.
type ChecklistItem struct {
	ID         int        `json:"id"`
	Content    string     `json:"content"`
	Evaluation Evaluation `json:"evaluation,omitempty"`
	Comment    string     `json:"comment,omitempty"`
}

// ChunkRange is a half-open range over a document's runes or pages.
type ChunkRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ReviewUnit pairs one document, or one chunk of it, with one category of
// checklist items.
type ReviewUnit struct {
	Document    Document
	Category    []ChecklistItem
	TotalChunks int
	ChunkIndex  int
	Range       ChunkRange
	ParentID    string
}

// PartLabel describes the unit's position within its parent document, or
// returns "" for an unsplit unit.
func (u ReviewUnit) PartLabel() string {
	return partLabel(u.TotalChunks, u.ChunkIndex)
}

func partLabel(total, index int) string {
	if total <= 1 {
		return ""
	}
	return fmt.Sprintf("part %d/%d", index+1, total)
}

// ItemResult is the model's answer for one checklist item. Chunk metadata is
// stamped on by the split controller.
type ItemResult struct {
	ChecklistID int        `json:"id"`
	Evaluation  Evaluation `json:"evaluation,omitempty"`
	Comment     string     `json:"comment"`
	DocumentID  string     `json:"documentId,omitempty"`
	ParentID    string     `json:"parentId,omitempty"`
	TotalChunks int        `json:"totalChunks,omitempty"`
	ChunkIndex  int        `json:"chunkIndex,omitempty"`
	Range       ChunkRange `json:"range"`
}

// SourceID returns the id of the original document the result came from.
func (r ItemResult) SourceID() string {
	if r.ParentID != "" {
		return r.ParentID
	}
	return r.DocumentID
}

// PartLabel mirrors ReviewUnit.PartLabel for a result.
func (r ItemResult) PartLabel() string {
	return partLabel(r.TotalChunks, r.ChunkIndex)
}

// Outcome is a successful completion: the parsed items and why the model
// stopped. Failures are reported as errors and classified with Classify.
type Outcome struct {
	Items        []ItemResult
	FinishReason providers.FinishReason
}

// SplitAttempt tracks the escalation state of one document.
type SplitAttempt struct {
	RetryCount  int
	SplitFactor int
}

func firstAttempt() SplitAttempt {
	return SplitAttempt{RetryCount: 0, SplitFactor: 1}
}

func (a SplitAttempt) next() SplitAttempt {
	return SplitAttempt{RetryCount: a.RetryCount + 1, SplitFactor: a.RetryCount + 2}
}

// DocumentInfo describes one reviewed document in a report.
type DocumentInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
	Size int    `json:"size"`
}

// EvaluationCounts holds counts by evaluation label.
type EvaluationCounts struct {
	Pass          int `json:"pass"`
	Partial       int `json:"partial"`
	Fail          int `json:"fail"`
	NotApplicable int `json:"notApplicable"`
}

// Summary provides an overview of evaluations.
type Summary struct {
	Counts EvaluationCounts `json:"counts"`
	Worst  Evaluation       `json:"worst"`
}

// Timing contains performance metrics.
type Timing struct {
	LLMMs   int64 `json:"llmMs"`
	Calls   int64 `json:"calls"`
	TotalMs int64 `json:"totalMs"`
}

// Report is the top-level output structure.
type Report struct {
	Tool      string          `json:"tool"`
	Version   string          `json:"version"`
	RunID     string          `json:"runId"`
	Mode      Mode            `json:"mode"`
	Provider  string          `json:"provider"`
	Documents []DocumentInfo  `json:"documents"`
	Summary   Summary         `json:"summary"`
	Items     []ChecklistItem `json:"items"`
	Timing    Timing          `json:"timing"`
}

// Apply copies final results onto the report's checklist items and
// recomputes the summary.
func (r *Report) Apply(results []ItemResult) {
	byID := make(map[int]ItemResult, len(results))
	for _, res := range results {
		byID[res.ChecklistID] = res
	}
	for i := range r.Items {
		if res, ok := byID[r.Items[i].ID]; ok {
			r.Items[i].Evaluation = res.Evaluation
			r.Items[i].Comment = res.Comment
		}
	}
	r.Summary = ComputeSummary(r.Items)
}

// ComputeSummary calculates the summary from evaluated items.
func ComputeSummary(items []ChecklistItem) Summary {
	var s Summary
	for _, it := range items {
		switch it.Evaluation {
		case EvaluationPass:
			s.Counts.Pass++
		case EvaluationPartial:
			s.Counts.Partial++
		case EvaluationFail:
			s.Counts.Fail++
		case EvaluationNotApplicable:
			s.Counts.NotApplicable++
		}
		if EvaluationRank(it.Evaluation) > EvaluationRank(s.Worst) {
			s.Worst = it.Evaluation
		}
	}
	return s
}

func describeDocuments(docs []Document) []DocumentInfo {
	infos := make([]DocumentInfo, 0, len(docs))
	for _, d := range docs {
		kind := "text"
		if d.IsImage() {
			kind = "image"
		}
		infos = append(infos, DocumentInfo{ID: d.ID, Name: d.Name, Kind: kind, Size: d.Len()})
	}
	return infos
}
