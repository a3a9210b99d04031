package review

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/dshills/docreview/internal/providers"
)

func samplePartials() []ItemResult {
	return []ItemResult{
		{ChecklistID: 1, Comment: "a1", DocumentID: "a"},
		{ChecklistID: 1, Comment: "b1 first", DocumentID: "b_part1", ParentID: "b", TotalChunks: 2, ChunkIndex: 0},
		{ChecklistID: 1, Comment: "b1 second", DocumentID: "b_part2", ParentID: "b", TotalChunks: 2, ChunkIndex: 1},
		{ChecklistID: 2, Comment: "a2", DocumentID: "a"},
		{ChecklistID: 2, Comment: "b2", DocumentID: "b_part1", ParentID: "b", TotalChunks: 2, ChunkIndex: 0},
		{ChecklistID: 3, Comment: "c3", DocumentID: "c"},
	}
}

func TestGroupEntries(t *testing.T) {
	names := map[string]string{"a": "alpha.txt", "b": "beta.pdf"}
	entries := groupEntries(samplePartials(), names)

	one := entries[1]
	if len(one) != 3 {
		t.Fatalf("item 1 has %d entries, want 3", len(one))
	}
	if one[0].DocumentName != "alpha.txt" {
		t.Errorf("entry 0 name = %q", one[0].DocumentName)
	}
	if one[1].DocumentName != "beta.pdf (part 1/2)" || one[2].DocumentName != "beta.pdf (part 2/2)" {
		t.Errorf("chunk names = %q, %q", one[1].DocumentName, one[2].DocumentName)
	}
	if one[1].DocumentID != "b" {
		t.Errorf("chunk entries should carry the source id, got %q", one[1].DocumentID)
	}
	// Unknown names fall back to the id.
	if entries[3][0].DocumentName != "c" {
		t.Errorf("fallback name = %q, want c", entries[3][0].DocumentName)
	}
}

func TestConsolidate_PromptIsIndependentOfPartialOrder(t *testing.T) {
	its := items(3)
	names := map[string]string{"a": "alpha.txt", "b": "beta.pdf", "c": "gamma.md"}

	capture := func(partials []ItemResult) []string {
		var mu sync.Mutex
		var prompts []string
		c := &Consolidator{
			Batcher: &Batcher{CategorySize: 2, Concurrency: 1},
			Call: func(_ context.Context, req providers.Request) (Outcome, error) {
				mu.Lock()
				prompts = append(prompts, req.UserPrompt)
				mu.Unlock()
				ids := promptIDs(req.UserPrompt)
				out := Outcome{FinishReason: providers.FinishStop}
				for _, id := range ids {
					out.Items = append(out.Items, ItemResult{ChecklistID: id, Evaluation: EvaluationPass, Comment: "merged"})
				}
				return out, nil
			},
		}
		got, err := c.Consolidate(context.Background(), its, partials, names)
		if err != nil {
			t.Fatalf("Consolidate error: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d results, want 3", len(got))
		}
		return prompts
	}

	base := capture(samplePartials())
	if len(base) != 2 {
		t.Fatalf("consolidation calls = %d, want one per category", len(base))
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5; i++ {
		shuffled := samplePartials()
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		again := capture(shuffled)
		for j := range base {
			if again[j] != base[j] {
				t.Fatalf("shuffle %d changed prompt %d:\n%s\nvs\n%s", i, j, base[j], again[j])
			}
		}
	}
}

func TestConsolidate_CallsScaleWithCategories(t *testing.T) {
	var partials []ItemResult
	for d := 0; d < 20; d++ {
		for _, it := range items(5) {
			partials = append(partials, ItemResult{ChecklistID: it.ID, DocumentID: string(rune('a' + d)), Comment: "c"})
		}
	}

	var mu sync.Mutex
	calls := 0
	c := &Consolidator{
		Batcher: &Batcher{CategorySize: 2, Concurrency: 4},
		Call: func(_ context.Context, req providers.Request) (Outcome, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			if !strings.Contains(req.SystemPrompt, "merge review comments") {
				t.Errorf("unexpected system prompt")
			}
			out := Outcome{}
			for _, id := range promptIDs(req.UserPrompt) {
				out.Items = append(out.Items, ItemResult{ChecklistID: id, Evaluation: EvaluationPartial})
			}
			return out, nil
		},
	}
	if _, err := c.Consolidate(context.Background(), items(5), partials, nil); err != nil {
		t.Fatalf("Consolidate error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 for 20 documents", calls)
	}
}

func TestBuildConsolidationPrompt_ItemWithoutEntries(t *testing.T) {
	p := BuildConsolidationPrompt([]ChecklistItem{{ID: 9, Content: "Lonely\nitem"}}, nil)
	if !strings.Contains(p, "[9] Lonely item\n[]") {
		t.Errorf("prompt = %q", p)
	}
}
