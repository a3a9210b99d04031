package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type rateLimitError struct {
	body string
}

func (e *rateLimitError) Error() string { return "rate limited" }

type serverError struct {
	statusCode int
	body       string
}

func (e *serverError) Error() string { return "server error: " + e.body }

// StatusCode returns the HTTP status reported by the provider.
func (e *serverError) StatusCode() int { return e.statusCode }

type authError struct {
	message string
}

func (e *authError) Error() string {
	return "authentication error: " + e.message
}

// APIError is a non-retryable HTTP failure from the completion service. The
// status code and body are kept verbatim so callers can classify the failure.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	var ae *authError
	if errors.As(err, &ae) {
		return true
	}
	var api *APIError
	return errors.As(err, &api) && (api.StatusCode == 401 || api.StatusCode == 403)
}

func isRetryable(err error) bool {
	var rl *rateLimitError
	var se *serverError
	return errors.As(err, &rl) || errors.As(err, &se)
}

// finalize converts an exhausted transient failure into an APIError so the
// caller sees one failure shape once retries are spent.
func finalize(provider string, err error) error {
	var rl *rateLimitError
	if errors.As(err, &rl) {
		return &APIError{Provider: provider, StatusCode: 429, Body: rl.body}
	}
	var se *serverError
	if errors.As(err, &se) {
		return &APIError{Provider: provider, StatusCode: se.statusCode, Body: se.body}
	}
	return err
}

func retryWithBackoff(ctx context.Context, maxRetries int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if !isRetryable(lastErr) {
			return lastErr
		}

		if attempt < maxRetries {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return lastErr
}

// statusError maps a non-200 HTTP status to the provider error shapes.
func statusError(provider string, status int, body []byte) error {
	switch {
	case status == 429:
		return &rateLimitError{body: string(body)}
	case status == 401 || status == 403:
		return &authError{message: string(body)}
	case status >= 500:
		return &serverError{statusCode: status, body: string(body)}
	default:
		return &APIError{Provider: provider, StatusCode: status, Body: string(body)}
	}
}
