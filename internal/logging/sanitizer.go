package logging

import (
	"regexp"

	"github.com/dshills/docreview/internal/redact"
)

// Sanitizer scrubs credentials from log text. It applies the document
// redaction rules plus any extra patterns added to it.
type Sanitizer struct {
	extra []*regexp.Regexp
}

// NewSanitizer creates a sanitizer with the built-in rules.
func NewSanitizer() *Sanitizer {
	return &Sanitizer{}
}

// Sanitize returns s with every detected secret replaced.
func (s *Sanitizer) Sanitize(text string) string {
	out := redact.Secrets(text)
	for _, re := range s.extra {
		out = re.ReplaceAllString(out, redact.Placeholder)
	}
	return out
}

// AddPattern adds a custom secret pattern. It is not safe to call while the
// sanitizer is in use.
func (s *Sanitizer) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	s.extra = append(s.extra, re)
	return nil
}
