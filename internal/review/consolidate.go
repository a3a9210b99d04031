package review

import (
	"context"
	"sort"

	"github.com/dshills/docreview/internal/providers"
)

// CallFunc performs one completion call and parses its per-item results.
type CallFunc func(ctx context.Context, req providers.Request) (Outcome, error)

// Consolidator merges per-document partial comments into one final result
// per checklist item.
type Consolidator struct {
	Batcher *Batcher
	Call    CallFunc
}

// Consolidate groups partials by checklist item and asks for one final
// evaluation per item, one completion call per category. names maps source
// document ids to display names.
func (c *Consolidator) Consolidate(ctx context.Context, items []ChecklistItem, partials []ItemResult, names map[string]string) ([]ItemResult, error) {
	entries := groupEntries(partials, names)

	return c.Batcher.Run(ctx, items, func(ctx context.Context, category []ChecklistItem) (Outcome, error) {
		return c.Call(ctx, providers.Request{
			SystemPrompt: ConsolidationSystemPrompt(),
			UserPrompt:   BuildConsolidationPrompt(category, entries),
		})
	})
}

// groupEntries collects the comments for each checklist id in a fixed order
// so identical partials always produce identical prompts.
func groupEntries(partials []ItemResult, names map[string]string) map[int][]ConsolidationEntry {
	sorted := make([]ItemResult, len(partials))
	copy(sorted, partials)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.SourceID() != b.SourceID() {
			return a.SourceID() < b.SourceID()
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.Comment < b.Comment
	})

	entries := make(map[int][]ConsolidationEntry)
	for _, r := range sorted {
		name := names[r.SourceID()]
		if name == "" {
			name = r.SourceID()
		}
		if label := r.PartLabel(); label != "" {
			name += " (" + label + ")"
		}
		entries[r.ChecklistID] = append(entries[r.ChecklistID], ConsolidationEntry{
			DocumentID:   r.SourceID(),
			DocumentName: name,
			Comment:      r.Comment,
		})
	}
	return entries
}
