package review

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dshills/docreview/internal/providers"
)

var (
	reviewIDPattern        = regexp.MustCompile(`(?m)^- id: (\d+),`)
	consolidationIDPattern = regexp.MustCompile(`(?m)^\[(\d+)\] `)
)

// promptIDs extracts the checklist ids a prompt asks about.
func promptIDs(prompt string) []int {
	pattern := reviewIDPattern
	if isConsolidation(prompt) {
		pattern = consolidationIDPattern
	}
	var ids []int
	for _, m := range pattern.FindAllStringSubmatch(prompt, -1) {
		id, _ := strconv.Atoi(m[1])
		ids = append(ids, id)
	}
	return ids
}

func isConsolidation(prompt string) bool {
	return strings.HasPrefix(prompt, "Consolidate")
}

// documentText returns the text between the document markers of a review prompt.
func documentText(prompt string) string {
	_, after, ok := strings.Cut(prompt, "--- BEGIN DOCUMENT ---\n")
	if !ok {
		return ""
	}
	text, _, _ := strings.Cut(after, "\n--- END DOCUMENT ---")
	return text
}

func answer(ids []int, eval Evaluation, comment string) string {
	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, map[string]any{"id": id, "evaluation": string(eval), "comment": comment})
	}
	data, _ := json.Marshal(out)
	return string(data)
}

func items(n int) []ChecklistItem {
	its := make([]ChecklistItem, n)
	for i := range its {
		its[i] = ChecklistItem{ID: i + 1, Content: fmt.Sprintf("Item %d is satisfied", i+1)}
	}
	return its
}

func resultIDs(rs []ItemResult) []int {
	ids := make([]int, len(rs))
	for i, r := range rs {
		ids[i] = r.ChecklistID
	}
	return ids
}

// fakeCompleter answers every request through respond and records it.
type fakeCompleter struct {
	mu      sync.Mutex
	calls   []providers.Request
	respond func(n int, req providers.Request) (providers.Response, error)
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(ctx context.Context, req providers.Request) (providers.Response, error) {
	if err := ctx.Err(); err != nil {
		return providers.Response{}, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	n := len(f.calls)
	f.mu.Unlock()
	return f.respond(n, req)
}

func (f *fakeCompleter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCompleter) countWhere(pred func(providers.Request) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if pred(c) {
			n++
		}
	}
	return n
}

// passAll answers every requested id with pass, and consolidation with fail
// so the two passes can be told apart.
func passAll(_ int, req providers.Request) (providers.Response, error) {
	eval := EvaluationPass
	if isConsolidation(req.UserPrompt) {
		eval = EvaluationFail
	}
	return providers.Response{
		Content:      answer(promptIDs(req.UserPrompt), eval, "ok"),
		FinishReason: providers.FinishStop,
	}, nil
}

// recordingStore keeps everything in memory.
type recordingStore struct {
	mu       sync.Mutex
	docs     map[string]Document
	partials []PartialRecord
	finals   []FinalRecord
}

func newRecordingStore() *recordingStore {
	return &recordingStore{docs: make(map[string]Document)}
}

func (s *recordingStore) SaveDocumentCache(_ context.Context, runID string, doc Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := runID + ":" + doc.ID
	s.docs[id] = doc
	return id, nil
}

func (s *recordingStore) SavePartialResult(_ context.Context, rec PartialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.partials = append(s.partials, rec)
	return nil
}

func (s *recordingStore) SaveFinalResult(_ context.Context, rec FinalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finals = append(s.finals, rec)
	return nil
}

func (s *recordingStore) finalIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int, len(s.finals))
	for i, f := range s.finals {
		ids[i] = f.ChecklistID
	}
	sort.Ints(ids)
	return ids
}
