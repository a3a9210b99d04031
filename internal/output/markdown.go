package output

import (
	"io"
	"strings"

	"github.com/dshills/docreview/internal/review"
)

// MarkdownWriter outputs a markdown report with a summary table and one
// collapsible section per evaluation.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, report *review.Report) error {
	ew := &errWriter{w: w}
	c := report.Summary.Counts

	ew.printf("## Document Review\n\n")
	if len(report.Documents) > 0 {
		names := make([]string, len(report.Documents))
		for i, d := range report.Documents {
			names[i] = "`" + d.Name + "`"
		}
		ew.printf("Documents: %s\n\n", strings.Join(names, ", "))
	}

	ew.printf("| Evaluation | Count |\n")
	ew.printf("|------------|-------|\n")
	ew.printf("| Fail       | %d    |\n", c.Fail)
	ew.printf("| Partial    | %d    |\n", c.Partial)
	ew.printf("| Pass       | %d    |\n", c.Pass)
	ew.printf("| N/A        | %d    |\n", c.NotApplicable)
	ew.printf("| **Total**  | **%d** |\n\n", len(report.Items))

	grouped := groupByEvaluation(report.Items)
	for _, e := range evaluationOrder {
		items := grouped[e]
		if len(items) == 0 {
			continue
		}
		open := ""
		if e == review.EvaluationFail {
			open = " open"
		}
		ew.printf("<details%s>\n<summary>%s %s (%d)</summary>\n\n", open, mdEvaluationIcon(e), evaluationLabel(e), len(items))
		for _, it := range items {
			ew.printf("### %d. %s\n\n", it.ID, escapeMarkdown(it.Content))
			if it.Comment != "" {
				ew.printf("> %s\n\n", strings.ReplaceAll(strings.TrimSpace(it.Comment), "\n", "\n> "))
			}
		}
		ew.printf("</details>\n\n")
	}

	ew.printf("*Reviewed in %dms (%d model calls, LLM: %dms)*\n",
		report.Timing.TotalMs, report.Timing.Calls, report.Timing.LLMMs)
	return ew.err
}

func mdEvaluationIcon(e review.Evaluation) string {
	switch e {
	case review.EvaluationFail:
		return ":x:"
	case review.EvaluationPartial:
		return ":warning:"
	case review.EvaluationPass:
		return ":white_check_mark:"
	case review.EvaluationNotApplicable:
		return ":heavy_minus_sign:"
	default:
		return ":grey_question:"
	}
}

var markdownEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;", "|", "\\|")

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
