package review

import (
	"context"
	"fmt"

	"github.com/dshills/docreview/internal/logging"
	"github.com/dshills/docreview/internal/providers"
)

// RunOnceFunc performs one completion call for one unit.
type RunOnceFunc func(ctx context.Context, unit ReviewUnit) (Outcome, error)

// SplitController retries a unit at increasing split factors while the
// completion service reports a context overflow.
type SplitController struct {
	// MaxEscalations bounds how many times the split factor is raised.
	MaxEscalations int
	TextOverlap    int
	ImageOverlap   int
	// Concurrency bounds the sub-units of one attempt that run at once.
	Concurrency int
	Logger      *logging.Logger
}

// Execute runs unit through runOnce. On overflow the whole unit is re-planned
// into one more chunk than before and every chunk is resubmitted; any other
// failure is returned immediately.
func (c *SplitController) Execute(ctx context.Context, unit ReviewUnit, runOnce RunOnceFunc) (Outcome, error) {
	log := c.Logger
	if log == nil {
		log = logging.NewNop()
	}
	log = log.WithDocument(unit.Document.ID)
	maxEsc := max(c.MaxEscalations, 0)

	attempt := firstAttempt()
	for {
		log.Debug("submitting unit", "split_factor", attempt.SplitFactor, "items", len(unit.Category))

		out, overflow, err := c.attempt(ctx, unit, attempt.SplitFactor, runOnce)
		if err != nil {
			return Outcome{}, err
		}
		if overflow == nil {
			return out, nil
		}

		// A chunk cannot be smaller than one rune or page.
		if attempt.RetryCount >= maxEsc || attempt.SplitFactor >= unit.Document.Len() {
			log.Warn("split retries exhausted", "attempts", attempt.RetryCount+1, "split_factor", attempt.SplitFactor)
			return Outcome{}, &SplitExhaustedError{
				DocumentID: unit.Document.ID,
				Attempts:   attempt.RetryCount + 1,
				Last:       overflow,
			}
		}

		attempt = attempt.next()
		log.Info("context window exceeded, splitting document", "split_factor", attempt.SplitFactor)
	}
}

type subOutcome struct {
	out      Outcome
	overflow *ContextOverflowError
}

// attempt submits every chunk of unit at split factor f. It returns the
// first overflow seen, if any, once all chunks have finished.
func (c *SplitController) attempt(ctx context.Context, unit ReviewUnit, f int, runOnce RunOnceFunc) (Outcome, *ContextOverflowError, error) {
	units := c.Split(unit, f)

	subs, err := RunAll(ctx, units, c.Concurrency, func(ctx context.Context, _ int, u ReviewUnit) (subOutcome, error) {
		out, err := runOnce(ctx, u)
		if err != nil {
			if Classify(err) == FailureContextOverflow {
				return subOutcome{overflow: &ContextOverflowError{DocumentID: u.Document.ID, Err: err}}, nil
			}
			return subOutcome{}, fmt.Errorf("reviewing %s: %w", u.Document.ID, err)
		}
		for i := range out.Items {
			stamp(&out.Items[i], u)
		}
		return subOutcome{out: out}, nil
	})
	if err != nil {
		return Outcome{}, nil, err
	}

	merged := Outcome{FinishReason: providers.FinishStop}
	for _, s := range subs {
		if s.overflow != nil {
			return Outcome{}, s.overflow, nil
		}
		merged.Items = append(merged.Items, s.out.Items...)
		if merged.FinishReason == providers.FinishStop && s.out.FinishReason != "" {
			merged.FinishReason = s.out.FinishReason
		}
	}
	return merged, nil, nil
}

// Split plans unit into at most f non-empty sub-units. A factor of one
// returns the unit itself with single-chunk metadata.
func (c *SplitController) Split(unit ReviewUnit, f int) []ReviewUnit {
	doc := unit.Document
	if f <= 1 {
		u := unit
		u.TotalChunks = 1
		u.ChunkIndex = 0
		u.Range = ChunkRange{Start: 0, End: doc.Len()}
		return []ReviewUnit{u}
	}

	overlap := c.TextOverlap
	if doc.IsImage() {
		overlap = c.ImageOverlap
	}
	var ranges []ChunkRange
	for _, r := range PlanRanges(doc.Len(), f, overlap) {
		// Rounding leaves trailing ranges empty when f is close to the length.
		if r.End > r.Start {
			ranges = append(ranges, r)
		}
	}

	units := make([]ReviewUnit, len(ranges))
	for i, r := range ranges {
		part := sliceDocument(doc, r)
		part.ID = fmt.Sprintf("%s_part%d", doc.ID, i+1)
		units[i] = ReviewUnit{
			Document:    part,
			Category:    unit.Category,
			TotalChunks: len(ranges),
			ChunkIndex:  i,
			Range:       r,
			ParentID:    doc.ID,
		}
	}
	return units
}

func stamp(r *ItemResult, u ReviewUnit) {
	r.DocumentID = u.Document.ID
	r.ParentID = u.ParentID
	r.TotalChunks = u.TotalChunks
	r.ChunkIndex = u.ChunkIndex
	r.Range = u.Range
}
