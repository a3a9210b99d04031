package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/docreview/internal/review"
)

// TextWriter outputs a human-readable text report.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}
	c := report.Summary.Counts

	ew.printf("Document Review (%s mode)\n", report.Mode)
	if report.RunID != "" {
		ew.printf("Run: %s\n", report.RunID)
	}
	if report.Provider != "" {
		ew.printf("Provider: %s\n", report.Provider)
	}
	for _, d := range report.Documents {
		ew.printf("Document: %s (%s, %d %s)\n", d.Name, d.Kind, d.Size, sizeUnit(d))
	}
	ew.println(strings.Repeat("─", 60))
	ew.printf("Items: %d (%d fail, %d partial, %d pass, %d n/a)\n",
		len(report.Items), c.Fail, c.Partial, c.Pass, c.NotApplicable)
	ew.println(strings.Repeat("─", 60))

	grouped := groupByEvaluation(report.Items)
	for _, e := range evaluationOrder {
		items := grouped[e]
		if len(items) == 0 {
			continue
		}
		ew.printf("\n%s %s\n", evaluationIcon(e), evaluationLabel(e))
		ew.println(strings.Repeat("─", 40))
		for _, it := range items {
			ew.printf("\n  #%d  %s\n", it.ID, it.Content)
			for _, line := range wrapText(it.Comment, 70) {
				if line != "" {
					ew.printf("    %s\n", line)
				}
			}
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %dms (%d model calls, LLM: %dms)\n",
		report.Timing.TotalMs, report.Timing.Calls, report.Timing.LLMMs)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

func sizeUnit(d review.DocumentInfo) string {
	if d.Kind == "image" {
		return "pages"
	}
	return "chars"
}

func evaluationIcon(e review.Evaluation) string {
	switch e {
	case review.EvaluationFail:
		return "[!!]"
	case review.EvaluationPartial:
		return "[!]"
	case review.EvaluationPass:
		return "[ok]"
	case review.EvaluationNotApplicable:
		return "[-]"
	default:
		return "[?]"
	}
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
