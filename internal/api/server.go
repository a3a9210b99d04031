package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/dshills/docreview/internal/logging"
	"github.com/dshills/docreview/internal/review"
	"github.com/dshills/docreview/internal/store"
)

// Reviewer runs one review. *review.Engine satisfies it.
type Reviewer interface {
	Run(ctx context.Context, req review.Request) (*review.Report, error)
}

// Config holds server settings.
type Config struct {
	APIKey         string
	MaxUploadBytes int64
	RedactPaths    []string
	// CORSOrigins enables CORS for these origins when non-empty.
	CORSOrigins []string
	// Mode, Provider and Model are recorded on every run.
	Mode     string
	Provider string
	Model    string
}

// Server is the HTTP API.
type Server struct {
	router   chi.Router
	reviewer Reviewer
	store    store.Store
	log      *logging.Logger
	cfg      Config
}

// NewServer creates a server. A nil logger logs nothing.
func NewServer(reviewer Reviewer, st store.Store, log *logging.Logger, cfg Config) *Server {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}
	s := &Server{
		reviewer: reviewer,
		store:    st,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}).Handler)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey))
		}
		r.Post("/reviews", s.handleCreateReview)
		r.Get("/reviews", s.handleListReviews)
		r.Get("/reviews/{runID}", s.handleGetReview)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
