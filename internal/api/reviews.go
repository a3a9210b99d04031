package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dshills/docreview/internal/checklist"
	"github.com/dshills/docreview/internal/extract"
	"github.com/dshills/docreview/internal/providers"
	"github.com/dshills/docreview/internal/redact"
	"github.com/dshills/docreview/internal/review"
	"github.com/dshills/docreview/internal/store"
)

// documentInput is one document in a JSON review request. Text documents
// set Text; binary formats set Name and base64 Data.
type documentInput struct {
	Name string `json:"name"`
	Text string `json:"text,omitempty"`
	Data []byte `json:"data,omitempty"`
}

type reviewRequest struct {
	Documents []documentInput `json:"documents"`
	// Items is a checklist in any JSON shape the checklist package reads.
	Items json.RawMessage `json:"items"`
}

type runResponse struct {
	Run     store.Run            `json:"run"`
	Results []review.FinalRecord `json:"results"`
}

type reviewError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
	RunID string `json:"runId"`
}

func (s *Server) handleCreateReview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	var (
		req review.Request
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		req, err = s.decodeMultipart(r)
	} else {
		req, err = s.decodeJSON(r)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, fmt.Sprintf("request exceeds %d bytes", tooLarge.Limit), http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	req.RunID = uuid.NewString()
	run := store.Run{
		ID:        req.RunID,
		Mode:      s.cfg.Mode,
		Provider:  s.cfg.Provider,
		Model:     s.cfg.Model,
		Documents: len(req.Documents),
		Items:     len(req.Items),
	}
	report, err := store.Track(r.Context(), s.store, run, func(ctx context.Context) (*review.Report, error) {
		return s.reviewer.Run(ctx, req)
	})
	if err != nil {
		code := errorStatus(err)
		if code >= http.StatusInternalServerError {
			s.log.WithRun(req.RunID).Error("review failed", "error", err)
		}
		writeJSON(w, code, reviewError{
			Error: review.UserMessage(err),
			Kind:  review.Classify(err).String(),
			RunID: req.RunID,
		})
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

// errorStatus maps a failed run to an HTTP status.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, review.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away.
		return 499
	case providers.IsAuthError(err):
		return http.StatusBadGateway
	case review.Classify(err) != review.FailureOther,
		errors.Is(err, review.ErrSplitExhausted),
		errors.Is(err, review.ErrIncompleteResult):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) extractOptions() extract.Options {
	return extract.Options{RedactPaths: s.cfg.RedactPaths}
}

func (s *Server) decodeJSON(r *http.Request) (review.Request, error) {
	var in reviewRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return review.Request{}, fmt.Errorf("invalid request body: %w", err)
	}
	if len(in.Documents) == 0 {
		return review.Request{}, errors.New("at least one document is required")
	}
	if len(in.Items) == 0 {
		return review.Request{}, errors.New("items are required")
	}

	var req review.Request
	for i, d := range in.Documents {
		name := sanitizeFilename(d.Name)
		if d.Name == "" {
			name = fmt.Sprintf("document %d", i+1)
		}
		var (
			doc review.Document
			err error
		)
		if d.Text != "" {
			text := d.Text
			if redact.MatchPath(name, s.cfg.RedactPaths) {
				text = redact.Document(text, name, s.cfg.RedactPaths)
			}
			doc = review.Document{Name: name, Text: text}
		} else {
			doc, err = extract.Bytes(name, d.Data, s.extractOptions())
		}
		if err != nil {
			return review.Request{}, err
		}
		req.Documents = append(req.Documents, doc)
	}

	items, err := checklist.Parse(".json", in.Items)
	if err != nil {
		return review.Request{}, fmt.Errorf("items: %w", err)
	}
	req.Items = items
	return req, nil
}

func (s *Server) decodeMultipart(r *http.Request) (review.Request, error) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return review.Request{}, fmt.Errorf("invalid multipart form: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	var req review.Request
	files := r.MultipartForm.File["documents"]
	if len(files) == 0 {
		return review.Request{}, errors.New(`at least one "documents" file is required`)
	}
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			return review.Request{}, err
		}
		doc, err := extract.Bytes(sanitizeFilename(fh.Filename), data, s.extractOptions())
		if err != nil {
			return review.Request{}, err
		}
		req.Documents = append(req.Documents, doc)
	}

	switch {
	case len(r.MultipartForm.File["checklist"]) > 0:
		fh := r.MultipartForm.File["checklist"][0]
		data, err := readPart(fh)
		if err != nil {
			return review.Request{}, err
		}
		req.Items, err = checklist.Parse(filepath.Ext(fh.Filename), data)
		if err != nil {
			return review.Request{}, fmt.Errorf("checklist: %w", err)
		}
	case r.FormValue("items") != "":
		items, err := checklist.Parse(".json", []byte(r.FormValue("items")))
		if err != nil {
			return review.Request{}, fmt.Errorf("items: %w", err)
		}
		req.Items = items
	default:
		return review.Request{}, errors.New(`a "checklist" file or "items" field is required`)
	}
	return req, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", fh.Filename, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	return data, nil
}

func (s *Server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		jsonError(w, "listing runs failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetReview(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := s.store.GetRun(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonError(w, "loading run failed", http.StatusInternalServerError)
		return
	}
	results, err := s.store.FinalResults(r.Context(), runID)
	if err != nil {
		jsonError(w, "loading results failed", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []review.FinalRecord{}
	}
	writeJSON(w, http.StatusOK, runResponse{Run: run, Results: results})
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." || name == "/" {
		name = "unnamed"
	}
	return name
}
