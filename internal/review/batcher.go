package review

import (
	"context"
	"sort"

	"github.com/dshills/docreview/internal/logging"
	"github.com/dshills/docreview/internal/providers"
)

const (
	defaultCategorySize            = 10
	defaultMaxCompletenessAttempts = 3
)

// SubmitFunc performs one completion call scoped to the given items.
type SubmitFunc func(ctx context.Context, category []ChecklistItem) (Outcome, error)

// Batcher partitions checklist items into categories and resubmits a
// category until every item in it has a result.
type Batcher struct {
	CategorySize int
	// MaxAttempts counts every submission of a category, the first included.
	MaxAttempts int
	Concurrency int
	Logger      *logging.Logger
}

// Partition splits items into ordered categories of at most CategorySize.
func (b *Batcher) Partition(items []ChecklistItem) [][]ChecklistItem {
	size := b.CategorySize
	if size <= 0 {
		size = defaultCategorySize
	}
	var cats [][]ChecklistItem
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		cats = append(cats, items[start:end:end])
	}
	return cats
}

// Resolve submits category and keeps resubmitting only the items that the
// model left out until every item has a result or the attempts run out.
func (b *Batcher) Resolve(ctx context.Context, category []ChecklistItem, submit SubmitFunc) ([]ItemResult, error) {
	log := b.Logger
	if log == nil {
		log = logging.NewNop()
	}
	maxAttempts := b.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxCompletenessAttempts
	}

	order := make(map[int]int, len(category))
	for i, it := range category {
		order[it.ID] = i
	}

	pending := category
	var collected []ItemResult
	for attempt := 1; ; attempt++ {
		out, err := submit(ctx, pending)
		if err != nil {
			return nil, err
		}
		if err := finishError(out.FinishReason); err != nil {
			return nil, err
		}

		want := make(map[int]bool, len(pending))
		for _, it := range pending {
			want[it.ID] = true
		}
		present := make(map[int]bool, len(pending))
		for _, r := range out.Items {
			if want[r.ChecklistID] {
				collected = append(collected, r)
				present[r.ChecklistID] = true
			}
		}

		var missing []ChecklistItem
		for _, it := range pending {
			if !present[it.ID] {
				missing = append(missing, it)
			}
		}
		if len(missing) == 0 {
			break
		}
		if attempt >= maxAttempts {
			log.Warn("checklist items still missing", "missing", len(missing), "attempts", attempt)
			return nil, &IncompleteResultError{Missing: missing, Attempts: attempt}
		}
		log.Info("resubmitting missing checklist items", "missing", len(missing), "attempt", attempt+1)
		pending = missing
	}

	sort.SliceStable(collected, func(i, j int) bool {
		return order[collected[i].ChecklistID] < order[collected[j].ChecklistID]
	})
	return collected, nil
}

// Run partitions items and resolves every category concurrently. Results are
// returned in category order.
func (b *Batcher) Run(ctx context.Context, items []ChecklistItem, submit SubmitFunc) ([]ItemResult, error) {
	cats := b.Partition(items)
	perCat, err := RunAll(ctx, cats, b.Concurrency, func(ctx context.Context, i int, cat []ChecklistItem) ([]ItemResult, error) {
		log := b.Logger
		if log != nil {
			log.WithCategory(i).Debug("resolving category", "items", len(cat))
		}
		return b.Resolve(ctx, cat, submit)
	})
	if err != nil {
		return nil, err
	}
	var all []ItemResult
	for _, rs := range perCat {
		all = append(all, rs...)
	}
	return all, nil
}

func finishError(reason providers.FinishReason) error {
	switch reason {
	case providers.FinishLength:
		return &TruncatedOutputError{}
	case providers.FinishContentFilter:
		return &ContentFilteredError{}
	case providers.FinishError:
		return &ModelError{}
	default:
		return nil
	}
}
