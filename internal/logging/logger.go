package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Logger is a slog.Logger whose records pass through a Sanitizer before
// they reach the output.
type Logger struct {
	*slog.Logger
	sanitizer *Sanitizer
}

// Config selects level, format and destination.
type Config struct {
	Level string
	// Format is auto, text or json. Auto picks the pretty console handler
	// for terminals and json otherwise.
	Format string
	Output io.Writer
}

// DefaultConfig logs info and above to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "auto",
		Output: os.Stderr,
	}
}

// New creates a logger.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		h = slog.NewJSONHandler(cfg.Output, opts)
	case "text":
		h = slog.NewTextHandler(cfg.Output, opts)
	default:
		if isTerminal(cfg.Output) {
			h = NewPrettyHandler(cfg.Output, level)
		} else {
			h = slog.NewJSONHandler(cfg.Output, opts)
		}
	}

	s := NewSanitizer()
	return &Logger{
		Logger:    slog.New(NewSanitizingHandler(h, s)),
		sanitizer: s,
	}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})),
		sanitizer: NewSanitizer(),
	}
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// WithRun tags records with a review run id.
func (l *Logger) WithRun(runID string) *Logger {
	return l.With("run_id", runID)
}

// WithDocument tags records with a document or chunk id.
func (l *Logger) WithDocument(docID string) *Logger {
	return l.With("document", docID)
}

// WithCategory tags records with a checklist category index.
func (l *Logger) WithCategory(index int) *Logger {
	return l.With("category", index)
}

// With returns a logger with extra fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		sanitizer: l.sanitizer,
	}
}

// Sanitize applies the logger's sanitizer to s.
func (l *Logger) Sanitize(s string) string {
	return l.sanitizer.Sanitize(s)
}
