package review

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/dshills/docreview/internal/logging"
	"github.com/dshills/docreview/internal/providers"
	"github.com/dshills/docreview/internal/redact"
)

const (
	toolName    = "docreview"
	toolVersion = "1.0"
	bundleID    = "bundle"
)

// Request is the input of one review run.
type Request struct {
	// RunID is generated when empty.
	RunID     string
	Documents []Document
	Items     []ChecklistItem
}

// Engine drives review runs against one completion service.
type Engine struct {
	completer providers.Completer
	store     Store
	opts      Options
	logger    *logging.Logger
	// inflight caps completion calls across every fan-out level and run.
	inflight *semaphore.Weighted
}

// NewEngine creates an engine. A nil store discards everything and a nil
// logger logs nothing.
func NewEngine(completer providers.Completer, store Store, opts Options, logger *logging.Logger) *Engine {
	if store == nil {
		store = nopStore{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	opts = opts.normalized()
	return &Engine{
		completer: completer,
		store:     store,
		opts:      opts,
		logger:    logger,
		inflight:  semaphore.NewWeighted(int64(opts.ConcurrencyLimit)),
	}
}

// run holds the state of one Run call.
type run struct {
	id       string
	log      *logging.Logger
	calls    atomic.Int64
	llmNanos atomic.Int64
}

// Run reviews every document against every checklist item and returns the
// report. Any terminal failure aborts the whole run.
func (e *Engine) Run(ctx context.Context, req Request) (*Report, error) {
	startTime := time.Now()

	docs, err := prepareDocuments(req.Documents, e.opts.RedactSecrets)
	if err != nil {
		return nil, err
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	r := &run{id: req.RunID}
	if r.id == "" {
		r.id = uuid.NewString()
	}
	r.log = e.logger.WithRun(r.id)
	r.log.Info("review started",
		"mode", string(e.opts.Mode),
		"documents", len(docs),
		"items", len(req.Items),
		"provider", e.completer.Name(),
	)

	var final []ItemResult
	switch e.opts.Mode {
	case ModeLarge:
		final, err = e.runLarge(ctx, r, docs, req.Items)
	default:
		final, err = e.runSmall(ctx, r, docs, req.Items)
	}
	if err != nil {
		r.log.Warn("review failed", "error", err.Error(), "kind", Classify(err).String())
		return nil, err
	}

	for _, res := range final {
		rec := FinalRecord{RunID: r.id, ChecklistID: res.ChecklistID, Evaluation: res.Evaluation, Comment: res.Comment}
		if err := e.store.SaveFinalResult(ctx, rec); err != nil {
			return nil, fmt.Errorf("saving final result: %w", err)
		}
	}

	items := make([]ChecklistItem, len(req.Items))
	copy(items, req.Items)
	report := &Report{
		Tool:      toolName,
		Version:   toolVersion,
		RunID:     r.id,
		Mode:      e.opts.Mode,
		Provider:  e.completer.Name(),
		Documents: describeDocuments(docs),
		Items:     items,
		Timing: Timing{
			LLMMs:   time.Duration(r.llmNanos.Load()).Milliseconds(),
			Calls:   r.calls.Load(),
			TotalMs: time.Since(startTime).Milliseconds(),
		},
	}
	report.Apply(final)

	r.log.Info("review finished", "calls", report.Timing.Calls, "total_ms", report.Timing.TotalMs)
	return report, nil
}

// runSmall reviews all documents together, one unit per category. Results
// only go through consolidation when the bundle had to be split.
func (e *Engine) runSmall(ctx context.Context, r *run, docs []Document, items []ChecklistItem) ([]ItemResult, error) {
	bundle, err := bundleDocuments(docs)
	if err != nil {
		return nil, err
	}

	call := e.call(r)
	runOnce := unitRunner(call)
	split := e.splitter(r)
	batcher := e.batcher(r)

	results, err := batcher.Run(ctx, items, func(ctx context.Context, category []ChecklistItem) (Outcome, error) {
		return split.Execute(ctx, ReviewUnit{Document: bundle, Category: category}, runOnce)
	})
	if err != nil {
		return nil, err
	}
	if !chunked(results) {
		return results, nil
	}

	r.log.Info("documents were split, consolidating chunk results", "results", len(results))
	cacheID, err := e.store.SaveDocumentCache(ctx, r.id, bundle)
	if err != nil {
		return nil, fmt.Errorf("saving document cache: %w", err)
	}
	for _, res := range results {
		if err := e.store.SavePartialResult(ctx, partialRecord(r.id, cacheID, res)); err != nil {
			return nil, fmt.Errorf("saving partial result: %w", err)
		}
	}

	c := &Consolidator{Batcher: batcher, Call: call}
	return c.Consolidate(ctx, items, results, map[string]string{bundle.ID: bundle.Name})
}

// runLarge reviews every document on its own for every category, then
// consolidates the per-document comments into one result per item.
func (e *Engine) runLarge(ctx context.Context, r *run, docs []Document, items []ChecklistItem) ([]ItemResult, error) {
	limit := e.opts.ConcurrencyLimit

	cacheIDs, err := RunAll(ctx, docs, limit, func(ctx context.Context, _ int, d Document) (string, error) {
		return e.store.SaveDocumentCache(ctx, r.id, d)
	})
	if err != nil {
		return nil, fmt.Errorf("saving document cache: %w", err)
	}

	call := e.call(r)
	runOnce := unitRunner(call)
	split := e.splitter(r)
	batcher := e.batcher(r)

	r.log.Info("reviewing documents individually", "documents", len(docs))
	cats := batcher.Partition(items)
	perCat, err := RunAll(ctx, cats, limit, func(ctx context.Context, ci int, category []ChecklistItem) ([]ItemResult, error) {
		perDoc, err := RunAll(ctx, docs, limit, func(ctx context.Context, di int, doc Document) ([]ItemResult, error) {
			res, err := batcher.Resolve(ctx, category, func(ctx context.Context, pending []ChecklistItem) (Outcome, error) {
				return split.Execute(ctx, ReviewUnit{Document: doc, Category: pending}, runOnce)
			})
			if err != nil {
				return nil, fmt.Errorf("document %s: %w", doc.Name, err)
			}
			for _, p := range res {
				if err := e.store.SavePartialResult(ctx, partialRecord(r.id, cacheIDs[di], p)); err != nil {
					return nil, fmt.Errorf("saving partial result: %w", err)
				}
			}
			return res, nil
		})
		if err != nil {
			return nil, err
		}
		r.log.WithCategory(ci).Debug("category reviewed", "documents", len(docs))
		var flat []ItemResult
		for _, rs := range perDoc {
			flat = append(flat, rs...)
		}
		return flat, nil
	})
	if err != nil {
		return nil, err
	}

	var partials []ItemResult
	for _, rs := range perCat {
		partials = append(partials, rs...)
	}

	names := make(map[string]string, len(docs))
	for _, d := range docs {
		names[d.ID] = d.Name
	}

	r.log.Info("consolidating", "partials", len(partials))
	c := &Consolidator{Batcher: batcher, Call: call}
	return c.Consolidate(ctx, items, partials, names)
}

func (e *Engine) splitter(r *run) *SplitController {
	return &SplitController{
		MaxEscalations: e.opts.MaxSplitEscalations,
		TextOverlap:    e.opts.TextOverlap,
		ImageOverlap:   e.opts.ImageOverlap,
		Concurrency:    e.opts.ConcurrencyLimit,
		Logger:         r.log,
	}
}

func (e *Engine) batcher(r *run) *Batcher {
	return &Batcher{
		CategorySize: e.opts.CategorySize,
		MaxAttempts:  e.opts.MaxCompletenessAttempts,
		Concurrency:  e.opts.ConcurrencyLimit,
		Logger:       r.log,
	}
}

// call returns the shared completion call: one request, one repair pass if
// the answer is not valid JSON.
func (e *Engine) call(r *run) CallFunc {
	return func(ctx context.Context, req providers.Request) (Outcome, error) {
		req.MaxTokens = e.opts.MaxTokens
		req.Temperature = e.opts.Temperature

		resp, err := e.complete(ctx, r, req)
		if err != nil {
			return Outcome{}, err
		}
		if !parseable(resp.FinishReason) {
			return Outcome{FinishReason: resp.FinishReason}, nil
		}

		results, err := parseResults(resp.Content)
		if err != nil {
			r.log.Debug("response was not valid JSON, attempting repair", "error", err.Error())
			repair := providers.Request{
				SystemPrompt: req.SystemPrompt,
				UserPrompt:   RepairPrompt(err, resp.Content),
				MaxTokens:    req.MaxTokens,
				Temperature:  req.Temperature,
			}
			resp2, err2 := e.complete(ctx, r, repair)
			if err2 != nil {
				return Outcome{}, fmt.Errorf("repair pass failed: %w (original error: %w)", err2, err)
			}
			if !parseable(resp2.FinishReason) {
				return Outcome{FinishReason: resp2.FinishReason}, nil
			}
			results, err = parseResults(resp2.Content)
			if err != nil {
				return Outcome{}, fmt.Errorf("response validation failed after repair: %w", err)
			}
		}
		return Outcome{Items: results, FinishReason: providers.FinishStop}, nil
	}
}

func (e *Engine) complete(ctx context.Context, r *run, req providers.Request) (providers.Response, error) {
	if err := e.inflight.Acquire(ctx, 1); err != nil {
		return providers.Response{}, err
	}
	defer e.inflight.Release(1)

	llmStart := time.Now()
	resp, err := e.completer.Complete(ctx, req)
	r.llmNanos.Add(int64(time.Since(llmStart)))
	r.calls.Add(1)
	if err != nil {
		return providers.Response{}, fmt.Errorf("%s completion: %w", e.completer.Name(), err)
	}
	return resp, nil
}

func unitRunner(call CallFunc) RunOnceFunc {
	return func(ctx context.Context, unit ReviewUnit) (Outcome, error) {
		return call(ctx, providers.Request{
			SystemPrompt: SystemPrompt(unit),
			UserPrompt:   BuildReviewPrompt(unit),
			Images:       unit.Document.Images,
		})
	}
}

// parseable reports whether a response with this finish reason carries a
// complete answer.
func parseable(reason providers.FinishReason) bool {
	switch reason {
	case "", providers.FinishStop, providers.FinishOther:
		return true
	default:
		return false
	}
}

func chunked(results []ItemResult) bool {
	for _, r := range results {
		if r.TotalChunks > 1 {
			return true
		}
	}
	return false
}

// prepareDocuments validates the documents, assigns missing ids and redacts
// secrets from text content.
func prepareDocuments(in []Document, redactSecrets bool) ([]Document, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("%w: no documents to review", ErrInvalidRequest)
	}
	docs := make([]Document, len(in))
	seen := make(map[string]bool, len(in))
	for i, d := range in {
		if d.Text != "" && len(d.Images) > 0 {
			return nil, fmt.Errorf("%w: document %q has both text and images", ErrInvalidRequest, d.Name)
		}
		if d.ID == "" {
			d.ID = fmt.Sprintf("doc%d", i+1)
		}
		if d.Name == "" {
			d.Name = d.ID
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: duplicate document id %q", ErrInvalidRequest, d.ID)
		}
		seen[d.ID] = true
		if redactSecrets && d.Text != "" {
			d.Text = redact.Secrets(d.Text)
		}
		docs[i] = d
	}
	return docs, nil
}

func validateItems(items []ChecklistItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: checklist is empty", ErrInvalidRequest)
	}
	seen := make(map[int]bool, len(items))
	for _, it := range items {
		if seen[it.ID] {
			return fmt.Errorf("%w: duplicate checklist item id %d", ErrInvalidRequest, it.ID)
		}
		seen[it.ID] = true
	}
	return nil
}

// bundleDocuments joins every document into the single unit reviewed in
// small mode.
func bundleDocuments(docs []Document) (Document, error) {
	if len(docs) == 1 {
		return docs[0], nil
	}

	images := docs[0].IsImage()
	names := make([]string, len(docs))
	for i, d := range docs {
		if d.IsImage() != images {
			return Document{}, fmt.Errorf("%w: small mode cannot mix text and image documents; use large mode", ErrInvalidRequest)
		}
		names[i] = d.Name
	}

	bundle := Document{ID: bundleID, Name: strings.Join(names, ", ")}
	if images {
		for _, d := range docs {
			bundle.Images = append(bundle.Images, d.Images...)
		}
		return bundle, nil
	}

	var b strings.Builder
	for i, d := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Document: %s ===\n", d.Name)
		b.WriteString(d.Text)
	}
	bundle.Text = b.String()
	return bundle, nil
}
