package review

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dshills/docreview/internal/providers"
)

func overflowErr() error {
	return &providers.APIError{Provider: "fake", StatusCode: 400, Body: "prompt is too long: 210000 tokens > 200000 maximum"}
}

func okOutcome(u ReviewUnit) Outcome {
	out := Outcome{FinishReason: providers.FinishStop}
	for _, it := range u.Category {
		out.Items = append(out.Items, ItemResult{ChecklistID: it.ID, Evaluation: EvaluationPass, Comment: u.Document.ID})
	}
	return out
}

func TestExecute_NoSplitNeeded(t *testing.T) {
	c := &SplitController{MaxEscalations: 5, Concurrency: 2}
	unit := ReviewUnit{Document: Document{ID: "d", Text: "short text"}, Category: items(2)}

	var calls atomic.Int32
	out, err := c.Execute(context.Background(), unit, func(_ context.Context, u ReviewUnit) (Outcome, error) {
		calls.Add(1)
		return okOutcome(u), nil
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	for _, r := range out.Items {
		if r.TotalChunks != 1 || r.ChunkIndex != 0 || r.ParentID != "" || r.DocumentID != "d" {
			t.Errorf("unexpected chunk metadata: %+v", r)
		}
		if r.Range != (ChunkRange{0, 10}) {
			t.Errorf("Range = %v, want {0 10}", r.Range)
		}
	}
}

func TestExecute_EscalatesUntilExhausted(t *testing.T) {
	c := &SplitController{MaxEscalations: 5, TextOverlap: 10, Concurrency: 3}
	unit := ReviewUnit{Document: Document{ID: "big", Text: strings.Repeat("x", 1000)}, Category: items(1)}

	var mu sync.Mutex
	factors := map[int]int{}
	var calls atomic.Int32
	_, err := c.Execute(context.Background(), unit, func(_ context.Context, u ReviewUnit) (Outcome, error) {
		calls.Add(1)
		mu.Lock()
		factors[u.TotalChunks]++
		mu.Unlock()
		return Outcome{}, overflowErr()
	})

	var exhausted *SplitExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want SplitExhaustedError", err)
	}
	if exhausted.Attempts != 6 {
		t.Errorf("Attempts = %d, want 6", exhausted.Attempts)
	}
	if err.Error() != splitExhaustedMessage {
		t.Errorf("message = %q", err.Error())
	}
	// 1 + 2 + 3 + 4 + 5 + 6
	if calls.Load() != 21 {
		t.Errorf("calls = %d, want 21", calls.Load())
	}
	for f := 1; f <= 6; f++ {
		if factors[f] != f {
			t.Errorf("factor %d submitted %d units, want %d", f, factors[f], f)
		}
	}
	if Classify(err) == FailureContextOverflow {
		t.Error("exhausted error must not classify as overflow")
	}
}

func TestExecute_ZeroEscalations(t *testing.T) {
	c := &SplitController{MaxEscalations: 0}
	unit := ReviewUnit{Document: Document{ID: "d", Text: "abc"}, Category: items(1)}
	var calls atomic.Int32
	_, err := c.Execute(context.Background(), unit, func(context.Context, ReviewUnit) (Outcome, error) {
		calls.Add(1)
		return Outcome{}, overflowErr()
	})
	if !errors.Is(err, ErrSplitExhausted) {
		t.Fatalf("err = %v, want ErrSplitExhausted", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestExecute_SplitsAndMerges(t *testing.T) {
	c := &SplitController{MaxEscalations: 5, TextOverlap: 0, Concurrency: 4}
	unit := ReviewUnit{Document: Document{ID: "doc", Name: "Doc", Text: strings.Repeat("y", 100)}, Category: items(3)}

	out, err := c.Execute(context.Background(), unit, func(_ context.Context, u ReviewUnit) (Outcome, error) {
		if u.Document.Len() > 40 {
			return Outcome{}, overflowErr()
		}
		return okOutcome(u), nil
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	// 100 runes only fit once split into three.
	if len(out.Items) != 9 {
		t.Fatalf("got %d results, want 9", len(out.Items))
	}
	for i, r := range out.Items {
		chunk := i / 3
		if r.TotalChunks != 3 || r.ChunkIndex != chunk {
			t.Errorf("result %d: chunk %d/%d, want %d/3", i, r.ChunkIndex, r.TotalChunks, chunk)
		}
		if r.ParentID != "doc" || r.SourceID() != "doc" {
			t.Errorf("result %d: parent %q", i, r.ParentID)
		}
		if want := "doc_part" + string(rune('1'+chunk)); r.DocumentID != want {
			t.Errorf("result %d: DocumentID = %q, want %q", i, r.DocumentID, want)
		}
	}
	if out.Items[8].Range.End != 100 {
		t.Errorf("last range = %v, want end 100", out.Items[8].Range)
	}
}

func TestExecute_OneChunkOverflowResplitsWholeDocument(t *testing.T) {
	c := &SplitController{MaxEscalations: 5, Concurrency: 1}
	// The first half is dense enough to overflow on its own at factor two.
	text := strings.Repeat("a", 60) + strings.Repeat("b", 60)
	unit := ReviewUnit{Document: Document{ID: "d", Text: text}, Category: items(1)}

	var mu sync.Mutex
	var seen []int
	out, err := c.Execute(context.Background(), unit, func(_ context.Context, u ReviewUnit) (Outcome, error) {
		mu.Lock()
		seen = append(seen, u.TotalChunks)
		mu.Unlock()
		if strings.Count(u.Document.Text, "a") > 40 {
			return Outcome{}, overflowErr()
		}
		return okOutcome(u), nil
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	// factor 1: 1 call, factor 2: 2 calls, factor 3: 3 calls.
	want := []int{1, 2, 2, 3, 3, 3}
	if len(seen) != len(want) {
		t.Fatalf("submissions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("submissions = %v, want %v", seen, want)
		}
	}
	if len(out.Items) != 3 {
		t.Errorf("got %d results, want 3", len(out.Items))
	}
}

func TestExecute_NonOverflowErrorStops(t *testing.T) {
	c := &SplitController{MaxEscalations: 5}
	unit := ReviewUnit{Document: Document{ID: "d", Text: "abc"}, Category: items(1)}
	boom := errors.New("connection refused")
	var calls atomic.Int32
	_, err := c.Execute(context.Background(), unit, func(context.Context, ReviewUnit) (Outcome, error) {
		calls.Add(1)
		return Outcome{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestExecute_FinishReasonPropagates(t *testing.T) {
	c := &SplitController{MaxEscalations: 1}
	unit := ReviewUnit{Document: Document{ID: "d", Text: "abc"}, Category: items(1)}
	out, err := c.Execute(context.Background(), unit, func(context.Context, ReviewUnit) (Outcome, error) {
		return Outcome{FinishReason: providers.FinishLength}, nil
	})
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if out.FinishReason != providers.FinishLength {
		t.Errorf("FinishReason = %q, want length", out.FinishReason)
	}
}

func TestSplit_ImageDocument(t *testing.T) {
	c := &SplitController{ImageOverlap: 1}
	pages := make([]providers.Image, 5)
	for i := range pages {
		pages[i] = providers.Image{MediaType: "image/png", Data: []byte{byte(i)}}
	}
	unit := ReviewUnit{Document: Document{ID: "scan", Images: pages}, Category: items(1)}

	units := c.Split(unit, 2)
	if len(units) != 2 {
		t.Fatalf("got %d units, want 2", len(units))
	}
	if units[0].Document.ID != "scan_part1" || units[1].Document.ID != "scan_part2" {
		t.Errorf("ids = %q, %q", units[0].Document.ID, units[1].Document.ID)
	}
	if units[1].Range.End != 5 {
		t.Errorf("last range = %v", units[1].Range)
	}
	total := 0
	for _, u := range units {
		if u.ParentID != "scan" || u.TotalChunks != 2 {
			t.Errorf("unit metadata = %+v", u)
		}
		total += len(u.Document.Images)
	}
	if total < 5 {
		t.Errorf("chunks hold %d pages, want at least 5", total)
	}
}

func TestExecute_ImagePagesStopAtOnePerChunk(t *testing.T) {
	c := &SplitController{MaxEscalations: 5, Concurrency: 2}
	pages := []providers.Image{
		{MediaType: "image/png", Data: []byte("p1")},
		{MediaType: "image/png", Data: []byte("p2")},
	}
	unit := ReviewUnit{Document: Document{ID: "scan", Images: pages}, Category: items(1)}

	var mu sync.Mutex
	var submitted []ReviewUnit
	_, err := c.Execute(context.Background(), unit, func(_ context.Context, u ReviewUnit) (Outcome, error) {
		mu.Lock()
		submitted = append(submitted, u)
		mu.Unlock()
		return Outcome{}, overflowErr()
	})

	var exhausted *SplitExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v, want SplitExhaustedError", err)
	}
	if exhausted.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", exhausted.Attempts)
	}
	// factor 1: the whole scan, factor 2: one page each.
	if len(submitted) != 3 {
		t.Fatalf("submitted %d units, want 3", len(submitted))
	}
	for _, u := range submitted {
		if !u.Document.IsImage() || u.Document.Len() == 0 {
			t.Errorf("unit %s submitted without pages: %+v", u.Document.ID, u.Document)
		}
		if u.TotalChunks > 2 {
			t.Errorf("unit %s split into %d chunks", u.Document.ID, u.TotalChunks)
		}
		if strings.Contains(BuildReviewPrompt(u), "BEGIN DOCUMENT") {
			t.Errorf("image unit %s rendered as text", u.Document.ID)
		}
	}
}

func TestSplit_DropsEmptyRanges(t *testing.T) {
	c := &SplitController{}
	unit := ReviewUnit{Document: Document{ID: "d", Text: "abcde"}, Category: items(1)}

	// ceil(5/4) = 2 leaves the fourth range empty.
	units := c.Split(unit, 4)
	if len(units) != 3 {
		t.Fatalf("got %d units, want 3", len(units))
	}
	var text strings.Builder
	for i, u := range units {
		if u.Document.Len() == 0 {
			t.Errorf("unit %d is empty", i)
		}
		if u.TotalChunks != 3 || u.ChunkIndex != i {
			t.Errorf("unit %d: chunk %d/%d", i, u.ChunkIndex, u.TotalChunks)
		}
		text.WriteString(u.Document.Text)
	}
	if text.String() != "abcde" {
		t.Errorf("chunks = %q, want abcde", text.String())
	}
}
