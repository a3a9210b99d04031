package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSARIFWriter_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := (&SARIFWriter{}).Write(&buf, emptyReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("invalid SARIF JSON: %v", err)
	}
	if log.Version != "2.1.0" {
		t.Errorf("Version = %q", log.Version)
	}
	if len(log.Runs) != 1 || len(log.Runs[0].Results) != 0 {
		t.Fatalf("unexpected runs: %+v", log.Runs)
	}
}

func TestSARIFWriter_Items(t *testing.T) {
	log := buildSARIF(sampleReport())
	run := log.Runs[0]

	if len(run.Tool.Driver.Rules) != 4 {
		t.Fatalf("rules = %d, want 4", len(run.Tool.Driver.Rules))
	}
	if run.Tool.Driver.Rules[1].ID != "docreview/item-2" {
		t.Errorf("rule id = %q", run.Tool.Driver.Rules[1].ID)
	}
	if len(run.Artifacts) != 2 {
		t.Errorf("artifacts = %d, want 2", len(run.Artifacts))
	}
	if run.Properties.RunID != "run-123" {
		t.Errorf("runId = %q", run.Properties.RunID)
	}

	want := map[string][2]string{
		"docreview/item-1": {"pass", "none"},
		"docreview/item-2": {"fail", "error"},
		"docreview/item-3": {"fail", "warning"},
		"docreview/item-4": {"notApplicable", "none"},
	}
	if len(run.Results) != len(want) {
		t.Fatalf("results = %d, want %d", len(run.Results), len(want))
	}
	for _, res := range run.Results {
		w := want[res.RuleID]
		if res.Kind != w[0] || res.Level != w[1] {
			t.Errorf("%s: kind/level = %s/%s, want %s/%s", res.RuleID, res.Kind, res.Level, w[0], w[1])
		}
		if len(res.Locations) != 2 {
			t.Errorf("%s: locations = %d", res.RuleID, len(res.Locations))
		}
		if run.Tool.Driver.Rules[res.RuleIndex].ID != res.RuleID {
			t.Errorf("%s: ruleIndex %d points at %s", res.RuleID, res.RuleIndex, run.Tool.Driver.Rules[res.RuleIndex].ID)
		}
	}
	if run.Results[3].Message.Text != "N/A: Physical badge access" {
		t.Errorf("empty comment message = %q", run.Results[3].Message.Text)
	}
}

func TestGetWriter(t *testing.T) {
	for _, f := range []string{"text", "json", "markdown", "md", "sarif", ""} {
		if _, err := GetWriter(f); err != nil {
			t.Errorf("GetWriter(%q): %v", f, err)
		}
	}
	if _, err := GetWriter("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestWriteReport_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.sarif")
	if err := WriteReport(sampleReport(), "sarif", path); err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !json.Valid(data) {
		t.Error("file does not hold valid JSON")
	}
	if err := WriteReport(sampleReport(), "xml", path); err == nil {
		t.Error("expected error for unknown format")
	}
}
