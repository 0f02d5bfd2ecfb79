package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scrapekit/scrapper/internal/scrape"
)

var validSlug = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type createProjectRequest struct {
	Slug            string         `json:"slug"`
	Name            string         `json:"name"`
	TargetURL       string         `json:"target_url"`
	Rules           scrape.RuleSet `json:"rules"`
	IntervalSeconds *int           `json:"interval_seconds"`
	MaxPages        *int           `json:"max_pages"`
	HeadlessAllowed *bool          `json:"headless_allowed"`
	RespectRobots   *bool          `json:"respect_robots"`
}

// projectView is a project plus derived run/record info for list and
// detail responses.
type projectView struct {
	scrape.Project
	LatestRun    *scrape.Run `json:"latest_run,omitempty"`
	TotalRecords int         `json:"total_records"`
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	start := s.clock.Now()

	limit := 0
	if raw := r.URL.Query().Get("max_proj"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "max_proj must be a positive integer")
			return
		}
		limit = n
	}

	projects, err := s.projects.ListProjects(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	views := make([]projectView, 0, len(projects))
	for _, project := range projects {
		view, err := s.buildProjectView(r.Context(), project)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to summarize projects")
			return
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, success("projects retrieved").
		with("total_projects", len(views)).
		with("projects", views).
		stamp(start, s.clock.Now()))
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	project, err := s.toProject(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.projects.CreateProject(r.Context(), project); err != nil {
		if errors.Is(err, scrape.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, fmt.Sprintf("project %q already exists", project.Slug))
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create project")
		return
	}
	writeJSON(w, http.StatusCreated, success("project created").with("project", project))
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	view, err := s.buildProjectView(r.Context(), project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to summarize project")
		return
	}
	writeJSON(w, http.StatusOK, success("project retrieved").with("project", view))
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	if err := s.projects.DeleteProject(r.Context(), slug); err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete project")
		return
	}
	writeJSON(w, http.StatusOK, success("project deleted").with("slug", slug))
}

func (s *Server) pauseProject(w http.ResponseWriter, r *http.Request) {
	s.setProjectStatus(w, r, scrape.ProjectStatusPaused, "project paused")
}

func (s *Server) resumeProject(w http.ResponseWriter, r *http.Request) {
	s.setProjectStatus(w, r, scrape.ProjectStatusActive, "project resumed")
}

func (s *Server) setProjectStatus(w http.ResponseWriter, r *http.Request, status scrape.ProjectStatus, message string) {
	slug := chi.URLParam(r, "slug")
	if err := s.projects.UpdateProjectStatus(r.Context(), slug, status); err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update project status")
		return
	}
	writeJSON(w, http.StatusOK, success(message).
		with("slug", slug).
		with("status", string(status)))
}

func (s *Server) triggerScrape(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if project.Status != scrape.ProjectStatusActive {
		writeError(w, http.StatusConflict, "project is paused")
		return
	}

	runID, err := s.submitRun(r.Context(), project)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, success("scrape run submitted").
		with("run_id", runID).
		with("slug", project.Slug))
}

func (s *Server) submitRun(ctx context.Context, project scrape.Project) (string, error) {
	runID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	now := s.clock.Now()
	run := scrape.Run{
		ID:        runID,
		ProjectID: project.ID,
		Status:    scrape.RunStatusQueued,
		Trigger:   scrape.TriggerManual,
		Submitted: now,
	}
	if err := s.results.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := scrape.QueueItem{
		RunID:     runID,
		Project:   project,
		Trigger:   scrape.TriggerManual,
		Submitted: now.Unix(),
	}
	if err := s.enqueuer.Enqueue(queueCtx, item); err != nil {
		return "", fmt.Errorf("enqueue run: %w", err)
	}
	return runID, nil
}

func (s *Server) loadProject(w http.ResponseWriter, r *http.Request) (scrape.Project, bool) {
	slug := chi.URLParam(r, "slug")
	project, err := s.projects.GetProject(r.Context(), slug)
	if err != nil {
		if errors.Is(err, scrape.ErrNotFound) {
			writeError(w, http.StatusNotFound, "project not found")
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load project")
		}
		return scrape.Project{}, false
	}
	return project, true
}

func (s *Server) buildProjectView(ctx context.Context, project scrape.Project) (projectView, error) {
	view := projectView{Project: project}

	latest, err := s.results.LatestRun(ctx, project.ID)
	switch {
	case err == nil:
		view.LatestRun = &latest
	case errors.Is(err, scrape.ErrNotFound):
	default:
		return projectView{}, err
	}

	count, err := s.results.CountRecords(ctx, project.ID)
	if err != nil {
		return projectView{}, err
	}
	view.TotalRecords = count
	return view, nil
}

func (s *Server) toProject(req createProjectRequest) (scrape.Project, error) {
	if !validSlug.MatchString(req.Slug) {
		return scrape.Project{}, errors.New("slug must be lowercase letters, digits and hyphens")
	}
	if req.Name == "" {
		return scrape.Project{}, errors.New("name is required")
	}
	target, err := url.Parse(req.TargetURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return scrape.Project{}, errors.New("target_url must be an absolute URL")
	}
	if len(req.Rules.Fields) == 0 {
		return scrape.Project{}, errors.New("rules.fields must not be empty")
	}
	for _, field := range req.Rules.Fields {
		if field.Name == "" {
			return scrape.Project{}, errors.New("every rule field needs a name")
		}
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return scrape.Project{}, fmt.Errorf("generate project id: %w", err)
	}
	now := s.clock.Now()
	return scrape.Project{
		ID:              id,
		Slug:            req.Slug,
		Name:            req.Name,
		TargetURL:       req.TargetURL,
		Rules:           req.Rules,
		IntervalSeconds: valueOrDefault(req.IntervalSeconds, s.cfg.Scraper.DefaultIntervalSec),
		Status:          scrape.ProjectStatusActive,
		MaxPages:        valueOrDefault(req.MaxPages, s.cfg.Scraper.MaxPagesDefault),
		HeadlessAllowed: valueOrDefault(req.HeadlessAllowed, s.cfg.Headless.Enabled),
		RespectRobots:   valueOrDefault(req.RespectRobots, s.cfg.Robots.Respect),
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}
