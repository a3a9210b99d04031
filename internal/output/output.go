package output

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/docreview/internal/review"
)

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *review.Report) error
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to outPath, or to stdout when outPath is
// empty.
func WriteReport(report *review.Report, format, outPath string) error {
	writer, err := GetWriter(format)
	if err != nil {
		return err
	}

	if outPath == "" {
		return writer.Write(os.Stdout, report)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	if err := writer.Write(f, report); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// evaluationOrder lists groups worst first. Unevaluated items come last.
var evaluationOrder = []review.Evaluation{
	review.EvaluationFail,
	review.EvaluationPartial,
	review.EvaluationPass,
	review.EvaluationNotApplicable,
	"",
}

func groupByEvaluation(items []review.ChecklistItem) map[review.Evaluation][]review.ChecklistItem {
	m := make(map[review.Evaluation][]review.ChecklistItem)
	for _, it := range items {
		e := it.Evaluation
		switch e {
		case review.EvaluationFail, review.EvaluationPartial, review.EvaluationPass, review.EvaluationNotApplicable:
		default:
			e = ""
		}
		m[e] = append(m[e], it)
	}
	return m
}

func evaluationLabel(e review.Evaluation) string {
	switch e {
	case review.EvaluationFail:
		return "FAIL"
	case review.EvaluationPartial:
		return "PARTIAL"
	case review.EvaluationPass:
		return "PASS"
	case review.EvaluationNotApplicable:
		return "N/A"
	default:
		return "NOT EVALUATED"
	}
}
