// Package api exposes the HTTP interface for the scrape service.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/scrapekit/scrapper/internal/config"
	"github.com/scrapekit/scrapper/internal/metrics"
	"github.com/scrapekit/scrapper/internal/scrape"
)

// Enqueuer submits queue items for execution. The dispatcher satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, item scrape.QueueItem) error
}

// Server wires HTTP handlers to the stores and the run queue.
type Server struct {
	router    chi.Router
	projects  scrape.ProjectStore
	results   scrape.ResultStore
	enqueuer  Enqueuer
	fetcher   scrape.Fetcher
	extractor scrape.Extractor
	idGen     scrape.IDGenerator
	clock     scrape.Clock
	cfg       config.Config
	logger    *zap.Logger
}

// Deps bundles the collaborators a Server needs.
type Deps struct {
	Projects  scrape.ProjectStore
	Results   scrape.ResultStore
	Enqueuer  Enqueuer
	Fetcher   scrape.Fetcher
	Extractor scrape.Extractor
	IDs       scrape.IDGenerator
	Clock     scrape.Clock
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		projects:  deps.Projects,
		results:   deps.Results,
		enqueuer:  deps.Enqueuer,
		fetcher:   deps.Fetcher,
		extractor: deps.Extractor,
		idGen:     deps.IDs,
		clock:     deps.Clock,
		cfg:       cfg,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}

		r.Get("/scrape", s.adhocScrape)

		r.Route("/api", func(r chi.Router) {
			r.Get("/summary", s.getSummary)
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", s.listProjects)
				r.Post("/", s.createProject)
				r.Route("/{slug}", func(r chi.Router) {
					r.Get("/", s.getProject)
					r.Delete("/", s.deleteProject)
					r.Post("/pause", s.pauseProject)
					r.Post("/resume", s.resumeProject)
					r.Post("/scrape", s.triggerScrape)
					r.Get("/records", s.listRecords)
					r.Get("/export", s.exportRecords)
					r.Route("/runs", func(r chi.Router) {
						r.Get("/", s.listRuns)
						r.Get("/{run_id}", s.getRun)
						r.Post("/{run_id}/cancel", s.cancelRun)
					})
				})
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// Readiness is a cheap store round-trip.
	if _, err := s.projects.ListProjects(r.Context(), 1); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
