package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docreview/internal/providers"
	"github.com/dshills/docreview/internal/redact"
	"github.com/dshills/docreview/internal/review"
	"github.com/dshills/docreview/internal/store"
)

type stubReviewer struct {
	mu   sync.Mutex
	last review.Request
	err  error
}

func (r *stubReviewer) Run(_ context.Context, req review.Request) (*review.Report, error) {
	r.mu.Lock()
	r.last = req
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	report := &review.Report{RunID: req.RunID, Items: req.Items}
	results := make([]review.ItemResult, len(req.Items))
	for i, it := range req.Items {
		results[i] = review.ItemResult{ChecklistID: it.ID, Evaluation: review.EvaluationPass, Comment: "ok"}
	}
	report.Apply(results)
	return report, nil
}

func newTestServer(t *testing.T, rv Reviewer, cfg Config) (*httptest.Server, store.Store) {
	t.Helper()
	st := store.NewMemory()
	ts := httptest.NewServer(NewServer(rv, st, nil, cfg))
	t.Cleanup(ts.Close)
	return ts, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, &stubReviewer{}, Config{APIKey: "secret"})
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])
}

func TestCreateReview_JSON(t *testing.T) {
	rv := &stubReviewer{}
	ts, st := newTestServer(t, rv, Config{Mode: "small", Provider: "anthropic", Model: "m"})

	resp := postJSON(t, ts.URL+"/api/reviews", map[string]any{
		"documents": []map[string]any{
			{"name": "policy.md", "text": "All laptops are encrypted."},
			{"name": "table.csv", "data": []byte("control,status\nMFA,on\n")},
		},
		"items": []any{"Encryption is required", map[string]any{"id": 7, "content": "MFA is enforced"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	report := decode[review.Report](t, resp)
	assert.Equal(t, 2, report.Summary.Counts.Pass)

	require.Len(t, rv.last.Documents, 2)
	assert.Equal(t, "policy.md", rv.last.Documents[0].Name)
	assert.Equal(t, "All laptops are encrypted.", rv.last.Documents[0].Text)
	assert.Contains(t, rv.last.Documents[1].Text, "control: MFA")
	assert.Equal(t, []review.ChecklistItem{{ID: 1, Content: "Encryption is required"}, {ID: 7, Content: "MFA is enforced"}}, rv.last.Items)

	run, err := st.GetRun(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, run.Status)
	assert.Equal(t, "anthropic", run.Provider)
	assert.Equal(t, 2, run.Documents)
}

func TestCreateReview_Multipart(t *testing.T) {
	rv := &stubReviewer{}
	ts, _ := newTestServer(t, rv, Config{RedactPaths: []string{"**/.env"}})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("documents", "notes.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("quarterly access reviews"))
	part, err = mw.CreateFormFile("documents", "../../.env")
	require.NoError(t, err)
	_, _ = part.Write([]byte("TOKEN=abc"))
	part, err = mw.CreateFormFile("checklist", "list.yaml")
	require.NoError(t, err)
	_, _ = part.Write([]byte("- Access is reviewed\n"))
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/api/reviews", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	require.Len(t, rv.last.Documents, 2)
	assert.Equal(t, "quarterly access reviews", rv.last.Documents[0].Text)
	assert.Equal(t, ".env", rv.last.Documents[1].Name)
	assert.True(t, strings.HasPrefix(rv.last.Documents[1].Text, redact.Placeholder))
	assert.Equal(t, []review.ChecklistItem{{ID: 1, Content: "Access is reviewed"}}, rv.last.Items)
}

func TestCreateReview_BadRequests(t *testing.T) {
	ts, _ := newTestServer(t, &stubReviewer{}, Config{})
	tests := []struct {
		name string
		body any
	}{
		{"no documents", map[string]any{"items": []string{"a"}}},
		{"no items", map[string]any{"documents": []map[string]any{{"name": "a", "text": "x"}}}},
		{"unsupported data", map[string]any{"documents": []map[string]any{{"name": "a.exe", "data": []byte("x")}}, "items": []string{"a"}}},
		{"unknown field", map[string]any{"docs": 1}},
		{"bad items", map[string]any{"documents": []map[string]any{{"name": "a", "text": "x"}}, "items": []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/reviews", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.NotEmpty(t, decode[map[string]string](t, resp)["error"])
		})
	}
}

func TestCreateReview_TooLarge(t *testing.T) {
	ts, _ := newTestServer(t, &stubReviewer{}, Config{MaxUploadBytes: 64})
	resp := postJSON(t, ts.URL+"/api/reviews", map[string]any{
		"documents": []map[string]any{{"name": "a", "text": strings.Repeat("x", 200)}},
		"items":     []string{"a"},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestCreateReview_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"incomplete", &review.IncompleteResultError{Missing: []review.ChecklistItem{{ID: 1, Content: "a"}}}, http.StatusUnprocessableEntity, "other"},
		{"truncated", &review.TruncatedOutputError{}, http.StatusUnprocessableEntity, "truncated-output"},
		{"invalid", fmt.Errorf("%w: checklist is empty", review.ErrInvalidRequest), http.StatusBadRequest, "other"},
		{"auth", &providers.APIError{Provider: "anthropic", StatusCode: 401, Body: "bad key"}, http.StatusBadGateway, "other"},
		{"unexpected", fmt.Errorf("disk full"), http.StatusInternalServerError, "other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, st := newTestServer(t, &stubReviewer{err: tt.err}, Config{})
			resp := postJSON(t, ts.URL+"/api/reviews", map[string]any{
				"documents": []map[string]any{{"name": "a", "text": "x"}},
				"items":     []string{"a"},
			})
			assert.Equal(t, tt.code, resp.StatusCode)
			body := decode[reviewError](t, resp)
			assert.Equal(t, review.UserMessage(tt.err), body.Error)
			assert.Equal(t, tt.kind, body.Kind)

			run, err := st.GetRun(context.Background(), body.RunID)
			require.NoError(t, err)
			assert.Equal(t, store.StatusFailed, run.Status)
			assert.Equal(t, body.Error, run.Error)
		})
	}
}

func TestGetAndListReviews(t *testing.T) {
	ts, _ := newTestServer(t, &stubReviewer{}, Config{})
	resp := postJSON(t, ts.URL+"/api/reviews", map[string]any{
		"documents": []map[string]any{{"name": "a", "text": "x"}},
		"items":     []string{"a"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	runID := decode[review.Report](t, resp).RunID

	got, err := http.Get(ts.URL + "/api/reviews/" + runID)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)
	rr := decode[runResponse](t, got)
	assert.Equal(t, runID, rr.Run.ID)
	assert.Equal(t, store.StatusCompleted, rr.Run.Status)
	assert.NotNil(t, rr.Results)

	missing, err := http.Get(ts.URL + "/api/reviews/nope")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	list, err := http.Get(ts.URL + "/api/reviews?limit=10")
	require.NoError(t, err)
	defer list.Body.Close()
	require.Equal(t, http.StatusOK, list.StatusCode)
	runs := decode[map[string][]store.Run](t, list)["runs"]
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)

	bad, err := http.Get(ts.URL + "/api/reviews?limit=x")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestAuth(t *testing.T) {
	ts, _ := newTestServer(t, &stubReviewer{}, Config{APIKey: "k3y"})

	resp, err := http.Get(ts.URL + "/api/reviews")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	for token, want := range map[string]int{"wrong": http.StatusUnauthorized, "k3y": http.StatusOK} {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/reviews", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, token)
	}
}

func TestCORS(t *testing.T) {
	ts, _ := newTestServer(t, &stubReviewer{}, Config{CORSOrigins: []string{"https://portal.example"}})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/reviews", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://portal.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://portal.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/api/reviews", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://elsewhere.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

var itemLine = regexp.MustCompile(`(?m)^- id: (\d+),`)

// passCompleter answers every review prompt with a pass for each listed item.
type passCompleter struct{}

func (passCompleter) Name() string { return "fake" }

func (passCompleter) Complete(_ context.Context, req providers.Request) (providers.Response, error) {
	var out []map[string]any
	for _, m := range itemLine.FindAllStringSubmatch(req.UserPrompt, -1) {
		id, _ := strconv.Atoi(m[1])
		out = append(out, map[string]any{"id": id, "evaluation": "pass", "comment": "found"})
	}
	data, _ := json.Marshal(out)
	return providers.Response{Content: string(data), FinishReason: providers.FinishStop}, nil
}

func TestCreateReview_Engine(t *testing.T) {
	st := store.NewMemory()
	opts := review.DefaultOptions()
	opts.CategorySize = 2
	engine := review.NewEngine(passCompleter{}, st, opts, nil)
	ts := httptest.NewServer(NewServer(engine, st, nil, Config{Mode: "small"}))
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/reviews", map[string]any{
		"documents": []map[string]any{{"name": "policy.txt", "text": "Everything is documented."}},
		"items":     []string{"one", "two", "three"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	report := decode[review.Report](t, resp)
	assert.Equal(t, 3, report.Summary.Counts.Pass)

	finals, err := st.FinalResults(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Len(t, finals, 3)
}
