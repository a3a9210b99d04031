package redact

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Placeholder replaces every redacted span.
const Placeholder = "[REDACTED]"

// rules are heuristics for credentials that commonly leak into policy
// documents, runbooks and exported configuration.
var rules = []*regexp.Regexp{
	// key = value style assignments
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret|client[_-]?secret)\s*[:=]\s*["']?[A-Za-z0-9/+=_-]{20,}["']?`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["'][^"']{8,}["']`),
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
	// cloud providers
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)aws[_-]?secret[_-]?access[_-]?key\s*[:=]\s*["']?[A-Za-z0-9/+=]{40}["']?`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	// LLM vendors; the Anthropic form must run first
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`sk-(proj-)?[A-Za-z0-9_-]{20,}`),
	// source hosting and chat
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[abposr]-[A-Za-z0-9-]{10,}`),
	// bearer tokens and JWTs
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`),
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	// PEM private keys
	regexp.MustCompile(`-----BEGIN\s+([A-Z]+\s+)?PRIVATE KEY-----`),
}

// Secrets replaces every detected credential in text with Placeholder.
func Secrets(text string) string {
	for _, re := range rules {
		text = re.ReplaceAllLiteralString(text, Placeholder)
	}
	return text
}

// MatchPath reports whether path matches one of the glob patterns. A leading
// "**/" matches the base name in any directory.
func MatchPath(path string, patterns []string) bool {
	slashed := filepath.ToSlash(path)
	for _, p := range patterns {
		if ok, err := filepath.Match(p, slashed); err == nil && ok {
			return true
		}
		if rest, found := strings.CutPrefix(p, "**/"); found {
			if ok, err := filepath.Match(rest, filepath.Base(slashed)); err == nil && ok {
				return true
			}
		}
	}
	return false
}

// Document returns the text that may leave the machine for a document loaded
// from path. Documents matching a path pattern are withheld entirely.
func Document(text, path string, pathPatterns []string) string {
	if MatchPath(path, pathPatterns) {
		return Placeholder + " (document withheld by path policy)"
	}
	return Secrets(text)
}
