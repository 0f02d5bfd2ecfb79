package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/scrapekit/scrapper/internal/export"
	"github.com/scrapekit/scrapper/internal/scrape"
)

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	start := s.clock.Now()
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	limit, offset, ok := parsePage(w, r)
	if !ok {
		return
	}
	field := r.URL.Query().Get("field")
	value := r.URL.Query().Get("value")
	if (field == "") != (value == "") {
		writeError(w, http.StatusBadRequest, "field and value must be provided together")
		return
	}

	var (
		records []scrape.Record
		total   int
		err     error
	)
	if field != "" {
		records, total, err = s.filteredRecords(r.Context(), project.ID, field, value, limit, offset)
	} else {
		records, err = s.results.ListRecords(r.Context(), project.ID, limit, offset)
		if err == nil {
			total, err = s.results.CountRecords(r.Context(), project.ID)
		}
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []scrape.Record{}
	}

	writeJSON(w, http.StatusOK, success("records retrieved").
		with("slug", project.Slug).
		with("total_records", total).
		with("records", records).
		stamp(start, s.clock.Now()))
}

// filteredRecords returns records whose named field contains the value,
// compared case-insensitively, windowed by limit and offset. The total is
// the match count before windowing.
func (s *Server) filteredRecords(ctx context.Context, projectID, field, value string, limit, offset int) ([]scrape.Record, int, error) {
	all, err := s.results.ListRecords(ctx, projectID, 0, 0)
	if err != nil {
		return nil, 0, err
	}

	needle := strings.ToLower(value)
	var matched []scrape.Record
	for _, record := range all {
		if strings.Contains(strings.ToLower(record.Fields[field]), needle) {
			matched = append(matched, record)
		}
	}

	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, total, nil
}

func (s *Server) exportRecords(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := s.results.ListRecords(r.Context(), project.ID, 0, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load records")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s-records.%s"`, project.Slug, format))
	w.WriteHeader(http.StatusOK)
	if err := export.Write(w, format, records); err != nil {
		s.logger.Error("export write failed", zap.Error(err))
	}
}

func (s *Server) getSummary(w http.ResponseWriter, r *http.Request) {
	start := s.clock.Now()

	projects, err := s.projects.ListProjects(r.Context(), 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list projects")
		return
	}

	runsByStatus := map[string]int{}
	recordsByProject := map[string]int{}
	totalRecords := 0
	active := 0

	for _, project := range projects {
		if project.Status == scrape.ProjectStatusActive {
			active++
		}
		count, err := s.results.CountRecords(r.Context(), project.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to count records")
			return
		}
		recordsByProject[project.Slug] = count
		totalRecords += count

		runs, err := s.results.ListRuns(r.Context(), project.ID, 0, 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list runs")
			return
		}
		for _, run := range runs {
			runsByStatus[string(run.Status)]++
		}
	}

	writeJSON(w, http.StatusOK, success("summary retrieved").
		with("total_projects", len(projects)).
		with("active_projects", active).
		with("total_records", totalRecords).
		with("records_by_project", recordsByProject).
		with("runs_by_status", runsByStatus).
		stamp(start, s.clock.Now()))
}
