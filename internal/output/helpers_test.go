package output

import "github.com/dshills/docreview/internal/review"

func sampleReport() *review.Report {
	r := &review.Report{
		Tool:     "docreview",
		Version:  "1.0",
		RunID:    "run-123",
		Mode:     review.ModeLarge,
		Provider: "anthropic",
		Documents: []review.DocumentInfo{
			{ID: "doc1", Name: "policy.md", Kind: "text", Size: 5400},
			{ID: "doc2", Name: "scan", Kind: "image", Size: 3},
		},
		Items: []review.ChecklistItem{
			{ID: 1, Content: "Passwords rotate yearly"},
			{ID: 2, Content: "MFA is enforced for <admins>"},
			{ID: 3, Content: "Backups are tested"},
			{ID: 4, Content: "Physical badge access"},
		},
		Timing: review.Timing{LLMMs: 900, Calls: 6, TotalMs: 1200},
	}
	r.Apply([]review.ItemResult{
		{ChecklistID: 1, Evaluation: review.EvaluationPass, Comment: "Section 2 requires annual rotation."},
		{ChecklistID: 2, Evaluation: review.EvaluationFail, Comment: "No MFA requirement found."},
		{ChecklistID: 3, Evaluation: review.EvaluationPartial, Comment: "Backups exist\nbut restores are untested."},
		{ChecklistID: 4, Evaluation: review.EvaluationNotApplicable},
	})
	return r
}

func emptyReport() *review.Report {
	return &review.Report{Tool: "docreview", Version: "1.0", Mode: review.ModeSmall}
}
