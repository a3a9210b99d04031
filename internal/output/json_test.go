package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/dshills/docreview/internal/review"
)

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	if err := (&JSONWriter{}).Write(&buf, sampleReport()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	var got review.Report
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.RunID != "run-123" {
		t.Errorf("RunID = %q", got.RunID)
	}
	if len(got.Items) != 4 {
		t.Fatalf("Items = %d, want 4", len(got.Items))
	}
	if got.Items[1].Evaluation != review.EvaluationFail {
		t.Errorf("item 2 evaluation = %q", got.Items[1].Evaluation)
	}
	if got.Summary.Worst != review.EvaluationFail {
		t.Errorf("Worst = %q", got.Summary.Worst)
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		t.Error("output should end with a newline")
	}
}
