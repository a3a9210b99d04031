package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/docreview/internal/review"
)

// SARIFWriter outputs item evaluations in SARIF v2.1.0 format. Each
// checklist item is a rule; each evaluated item is a result located in every
// reviewed document.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, report *review.Report) error {
	data, err := json.MarshalIndent(buildSARIF(report), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool       sarifTool          `json:"tool"`
	Artifacts  []sarifArtifact    `json:"artifacts,omitempty"`
	Results    []sarifResult      `json:"results"`
	Properties sarifRunProperties `json:"properties"`
}

type sarifRunProperties struct {
	RunID string `json:"runId,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name    string      `json:"name"`
	Version string      `json:"version"`
	Rules   []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string             `json:"id"`
	Name             string             `json:"name"`
	ShortDescription sarifMessage       `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig `json:"defaultConfiguration"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifArtifact struct {
	Location sarifArtifactLocation `json:"location"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	RuleIndex int             `json:"ruleIndex"`
	Kind      string          `json:"kind"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
}

type sarifArtifactLocation struct {
	URI   string `json:"uri"`
	Index *int   `json:"index,omitempty"`
}

func buildSARIF(report *review.Report) sarifLog {
	artifacts := make([]sarifArtifact, len(report.Documents))
	locations := make([]sarifLocation, len(report.Documents))
	for i, d := range report.Documents {
		artifacts[i] = sarifArtifact{Location: sarifArtifactLocation{URI: d.Name}}
		idx := i
		locations[i] = sarifLocation{PhysicalLocation: sarifPhysicalLocation{
			ArtifactLocation: sarifArtifactLocation{URI: d.Name, Index: &idx},
		}}
	}

	rules := make([]sarifRule, 0, len(report.Items))
	results := make([]sarifResult, 0, len(report.Items))
	for i, it := range report.Items {
		id := ruleID(it)
		rules = append(rules, sarifRule{
			ID:               id,
			Name:             fmt.Sprintf("checklist-item-%d", it.ID),
			ShortDescription: sarifMessage{Text: it.Content},
			DefaultConfig:    sarifDefaultConfig{Level: "error"},
		})
		if it.Evaluation == "" {
			continue
		}
		kind, level := evaluationToSARIF(it.Evaluation)
		msg := it.Comment
		if msg == "" {
			msg = fmt.Sprintf("%s: %s", evaluationLabel(it.Evaluation), it.Content)
		}
		results = append(results, sarifResult{
			RuleID:    id,
			RuleIndex: i,
			Kind:      kind,
			Level:     level,
			Message:   sarifMessage{Text: msg},
			Locations: locations,
		})
	}

	return sarifLog{
		Version: "2.1.0",
		Schema:  "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json",
		Runs: []sarifRun{{
			Tool: sarifTool{Driver: sarifDriver{
				Name:    report.Tool,
				Version: report.Version,
				Rules:   rules,
			}},
			Artifacts:  artifacts,
			Results:    results,
			Properties: sarifRunProperties{RunID: report.RunID, Mode: string(report.Mode)},
		}},
	}
}

// evaluationToSARIF maps an evaluation to a SARIF result kind and level.
func evaluationToSARIF(e review.Evaluation) (kind, level string) {
	switch e {
	case review.EvaluationFail:
		return "fail", "error"
	case review.EvaluationPartial:
		return "fail", "warning"
	case review.EvaluationPass:
		return "pass", "none"
	case review.EvaluationNotApplicable:
		return "notApplicable", "none"
	default:
		return "review", "note"
	}
}

func ruleID(it review.ChecklistItem) string {
	return fmt.Sprintf("docreview/item-%d", it.ID)
}
