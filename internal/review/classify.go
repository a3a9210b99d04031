package review

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/dshills/docreview/internal/providers"
)

// overflowPhrases are the vendor phrasings for an input that exceeded the
// model's context window or per-request image count. Matched
// case-insensitively, so they must stay specific.
var overflowPhrases = []string{
	"maximum context length",
	"context_length_exceeded",
	"context length exceeded",
	"exceeds the context length",
	"exceeds the available context size",
	"exceeds the context window",
	"context window exceeded",
	"prompt is too long",
	"input is too long",
	"exceeds the maximum number of tokens",
	"input token count",
	"request_too_large",
	"too many images",
	"exceeds the maximum number of images",
}

// Classify decides what kind of failure err is. It is the only place that
// inspects provider error text; unknown shapes are FailureOther.
func Classify(err error) FailureKind {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureOther
	}
	// A spent escalation is terminal even though it wraps the last overflow.
	var exhausted *SplitExhaustedError
	if errors.As(err, &exhausted) {
		return FailureOther
	}

	var apiErr *providers.APIError
	if errors.As(err, &apiErr) {
		// Rate limits mention tokens too but are never fixed by splitting.
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return FailureOther
		}
		if apiErr.StatusCode == http.StatusRequestEntityTooLarge || matchesOverflow(apiErr.Body) {
			return FailureContextOverflow
		}
	}
	if matchesOverflow(err.Error()) {
		return FailureContextOverflow
	}

	var kinded interface{ Kind() FailureKind }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}

	if apiErr != nil && apiErr.StatusCode >= 500 {
		return FailureModelError
	}
	return FailureOther
}

func matchesOverflow(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, p := range overflowPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
