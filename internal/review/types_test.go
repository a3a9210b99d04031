package review

import (
	"testing"

	"github.com/dshills/docreview/internal/config"
)

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeSmall, "small": ModeSmall, "large": ModeLarge} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("huge"); err == nil {
		t.Error("ParseMode(huge) should fail")
	}
}

func TestMeetsThreshold(t *testing.T) {
	tests := []struct {
		eval      Evaluation
		threshold string
		want      bool
	}{
		{EvaluationFail, "fail", true},
		{EvaluationPartial, "fail", false},
		{EvaluationPartial, "partial", true},
		{EvaluationPass, "partial", false},
		{EvaluationFail, "none", false},
		{EvaluationNotApplicable, "pass", false},
	}
	for _, tt := range tests {
		if got := MeetsThreshold(tt.eval, tt.threshold); got != tt.want {
			t.Errorf("MeetsThreshold(%q, %q) = %v, want %v", tt.eval, tt.threshold, got, tt.want)
		}
	}
}

func TestSplitAttemptSequence(t *testing.T) {
	a := firstAttempt()
	for i := 0; i < 5; i++ {
		if a.SplitFactor != a.RetryCount+1 {
			t.Fatalf("attempt %d: factor %d retry %d", i, a.SplitFactor, a.RetryCount)
		}
		a = a.next()
	}
	if a.SplitFactor != 6 {
		t.Errorf("SplitFactor after 5 escalations = %d, want 6", a.SplitFactor)
	}
}

func TestReportApply(t *testing.T) {
	r := &Report{Items: []ChecklistItem{{ID: 1}, {ID: 2}, {ID: 3}}}
	r.Apply([]ItemResult{
		{ChecklistID: 2, Evaluation: EvaluationFail, Comment: "missing owner"},
		{ChecklistID: 1, Evaluation: EvaluationPass},
		{ChecklistID: 3, Evaluation: EvaluationNotApplicable},
	})
	if r.Items[1].Evaluation != EvaluationFail || r.Items[1].Comment != "missing owner" {
		t.Errorf("item 2 = %+v", r.Items[1])
	}
	want := EvaluationCounts{Pass: 1, Fail: 1, NotApplicable: 1}
	if r.Summary.Counts != want {
		t.Errorf("Counts = %+v, want %+v", r.Summary.Counts, want)
	}
	if r.Summary.Worst != EvaluationFail {
		t.Errorf("Worst = %q, want fail", r.Summary.Worst)
	}
}

func TestPartLabel(t *testing.T) {
	if got := (ItemResult{TotalChunks: 1}).PartLabel(); got != "" {
		t.Errorf("single chunk label = %q", got)
	}
	if got := (ReviewUnit{TotalChunks: 4, ChunkIndex: 3}).PartLabel(); got != "part 4/4" {
		t.Errorf("label = %q, want part 4/4", got)
	}
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DocumentMode = "large"
	cfg.ConcurrencyLimit = 2
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("OptionsFromConfig error: %v", err)
	}
	if opts.Mode != ModeLarge || opts.ConcurrencyLimit != 2 {
		t.Errorf("opts = %+v", opts)
	}

	cfg.DocumentMode = "medium"
	if _, err := OptionsFromConfig(cfg); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestOptionsNormalized(t *testing.T) {
	o := Options{MaxSplitEscalations: -3, TextOverlap: -1}.normalized()
	d := DefaultOptions()
	if o.Mode != ModeSmall || o.ConcurrencyLimit != d.ConcurrencyLimit || o.CategorySize != d.CategorySize {
		t.Errorf("normalized = %+v", o)
	}
	if o.MaxSplitEscalations != 0 || o.TextOverlap != 0 {
		t.Errorf("negatives not clamped: %+v", o)
	}
}
