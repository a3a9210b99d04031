package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dshills/docreview/internal/providers"
)

// FailureKind tags why a completion call did not produce a usable outcome.
type FailureKind int

const (
	FailureOther FailureKind = iota
	FailureContextOverflow
	FailureTruncatedOutput
	FailureContentFiltered
	FailureModelError
)

func (k FailureKind) String() string {
	switch k {
	case FailureContextOverflow:
		return "context-overflow"
	case FailureTruncatedOutput:
		return "truncated-output"
	case FailureContentFiltered:
		return "content-filtered"
	case FailureModelError:
		return "model-error"
	default:
		return "other"
	}
}

// Sentinels usable with errors.Is.
var (
	ErrContextOverflow  = errors.New("context window exceeded")
	ErrSplitExhausted   = errors.New("split retries exhausted")
	ErrIncompleteResult = errors.New("incomplete review result")
	ErrTruncatedOutput  = errors.New("maximum output length exceeded")
	ErrContentFiltered  = errors.New("output blocked by content filter")
	ErrModel            = errors.New("completion service error")
	// ErrInvalidRequest wraps problems with the request itself; no
	// completion call was made.
	ErrInvalidRequest = errors.New("invalid review request")
)

const splitExhaustedMessage = "document splitting was retried repeatedly but the context-length error did not resolve"

const missingResultMessage = "the model output did not include a review result for this item"

// ContextOverflowError reports that the submitted input exceeded the model's
// context window.
type ContextOverflowError struct {
	DocumentID string
	Err        error
}

func (e *ContextOverflowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("context window exceeded for %s: %v", e.DocumentID, e.Err)
	}
	return fmt.Sprintf("context window exceeded for %s", e.DocumentID)
}

func (e *ContextOverflowError) Unwrap() error     { return e.Err }
func (e *ContextOverflowError) Is(t error) bool   { return t == ErrContextOverflow }
func (e *ContextOverflowError) Kind() FailureKind { return FailureContextOverflow }

// SplitExhaustedError is returned once a document has been split the
// maximum number of times and the overflow persists.
type SplitExhaustedError struct {
	DocumentID string
	Attempts   int
	Last       error
}

func (e *SplitExhaustedError) Error() string     { return splitExhaustedMessage }
func (e *SplitExhaustedError) Unwrap() error     { return e.Last }
func (e *SplitExhaustedError) Is(t error) bool   { return t == ErrSplitExhausted }
func (e *SplitExhaustedError) Kind() FailureKind { return FailureOther }

// IncompleteResultError names the checklist items that were still missing
// after every completeness attempt.
type IncompleteResultError struct {
	Missing  []ChecklistItem
	Attempts int
}

func (e *IncompleteResultError) Error() string {
	var b strings.Builder
	for i, it := range e.Missing {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%q: %s", it.Content, missingResultMessage)
	}
	return b.String()
}

func (e *IncompleteResultError) Is(t error) bool   { return t == ErrIncompleteResult }
func (e *IncompleteResultError) Kind() FailureKind { return FailureOther }

// TruncatedOutputError reports that the model stopped at its output limit.
type TruncatedOutputError struct{}

func (e *TruncatedOutputError) Error() string     { return "maximum output length exceeded" }
func (e *TruncatedOutputError) Is(t error) bool   { return t == ErrTruncatedOutput }
func (e *TruncatedOutputError) Kind() FailureKind { return FailureTruncatedOutput }

// ContentFilteredError reports that the model output was filtered.
type ContentFilteredError struct{}

func (e *ContentFilteredError) Error() string {
	return "the model output was blocked by a content filter"
}
func (e *ContentFilteredError) Is(t error) bool   { return t == ErrContentFiltered }
func (e *ContentFilteredError) Kind() FailureKind { return FailureContentFiltered }

// ModelError reports a failure on the completion service side.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string {
	if e.Err != nil {
		return "completion service error: " + e.Err.Error()
	}
	return "completion service error"
}

func (e *ModelError) Unwrap() error     { return e.Err }
func (e *ModelError) Is(t error) bool   { return t == ErrModel }
func (e *ModelError) Kind() FailureKind { return FailureModelError }

// UserMessage returns the single caller-facing message for a failed run.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		exhausted  *SplitExhaustedError
		incomplete *IncompleteResultError
		modelErr   *ModelError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "the review was cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "the review timed out"
	case errors.As(err, &exhausted):
		return exhausted.Error()
	case errors.As(err, &incomplete):
		return incomplete.Error()
	case errors.Is(err, ErrTruncatedOutput):
		return "maximum output length exceeded"
	case errors.Is(err, ErrContentFiltered):
		return "the model output was blocked by a content filter"
	case providers.IsAuthError(err):
		return "authentication with the completion service failed; check the API key"
	case errors.As(err, &modelErr):
		return modelErr.Error()
	default:
		return err.Error()
	}
}
