package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/scrapekit/scrapper/internal/scrape"
)

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	limit, offset, ok := parsePage(w, r)
	if !ok {
		return
	}

	runs, err := s.results.ListRuns(r.Context(), project.ID, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []scrape.Run{}
	}
	writeJSON(w, http.StatusOK, success("runs retrieved").
		with("slug", project.Slug).
		with("total_runs", len(runs)).
		with("runs", runs))
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, success("run retrieved").with("run", run))
}

func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.loadRun(w, r)
	if !ok {
		return
	}
	if run.Status.Terminal() {
		writeError(w, http.StatusConflict, "run already finished")
		return
	}

	err := s.results.UpdateRunStatus(r.Context(), run.ID,
		scrape.RunStatusCanceled, "canceled via API", run.Counters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel run")
		return
	}
	writeJSON(w, http.StatusOK, success("run canceled").
		with("run_id", run.ID).
		with("status", string(scrape.RunStatusCanceled)))
}

// loadRun resolves {slug}/{run_id} and rejects runs that belong to a
// different project.
func (s *Server) loadRun(w http.ResponseWriter, r *http.Request) (scrape.Run, bool) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return scrape.Run{}, false
	}
	runID := chi.URLParam(r, "run_id")
	run, err := s.results.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load run")
		}
		return scrape.Run{}, false
	}
	if run.ProjectID != project.ID {
		writeError(w, http.StatusNotFound, "run not found")
		return scrape.Run{}, false
	}
	return run, true
}

func parsePage(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	query := r.URL.Query()
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = n
	}
	if raw := query.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
