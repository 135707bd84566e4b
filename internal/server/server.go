// Package server exposes the read-only monitor API: run listings, task
// records, and per-run summaries served from the store over JSON. The
// server never mutates state; runs are started from the CLI.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Tom-Jenkins/maerl-wgs-pipelines/internal/store"
)

// Server is the monitor REST API.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	store     store.Store
}

// New creates a Server with all routes registered.
func New(st store.Store, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		store:     st,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/tasks", s.handleListRunTasks)
				r.Get("/summary", s.handleRunSummary)
			})
		})
	})
}
