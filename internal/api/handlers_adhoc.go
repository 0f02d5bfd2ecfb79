package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/scrapekit/scrapper/internal/scrape"
)

// defaultAdhocRules extracts the page title and top headline when the
// caller supplies no rule set.
func defaultAdhocRules() scrape.RuleSet {
	return scrape.RuleSet{
		Fields: []scrape.FieldRule{
			{Name: "title", Selector: "title"},
			{Name: "headline", Selector: "h1"},
		},
	}
}

// adhocScrape fetches and extracts a single URL without registering a
// project. An optional JSON body carries a rule set override.
func (s *Server) adhocScrape(w http.ResponseWriter, r *http.Request) {
	start := s.clock.Now()

	rawURL := r.URL.Query().Get("url")
	target, err := url.Parse(rawURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		writeError(w, http.StatusBadRequest, "url must be an absolute URL")
		return
	}

	rules := defaultAdhocRules()
	if body, readErr := io.ReadAll(r.Body); readErr == nil && len(body) > 0 {
		var req struct {
			Rules scrape.RuleSet `json:"rules"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid rules JSON")
			return
		}
		if len(req.Rules.Fields) > 0 {
			rules = req.Rules
		}
	}

	resp, err := s.fetcher.Fetch(r.Context(), scrape.FetchRequest{URL: rawURL})
	if err != nil {
		writeError(w, http.StatusBadGateway, "fetch failed: "+err.Error())
		return
	}
	result, err := s.extractor.Extract(rules, resp.URL, resp.Body)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "extract failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, success("scrape completed").
		with("url", resp.URL).
		with("status_code", resp.StatusCode).
		with("total_records", len(result.Fields)).
		with("records", result.Fields).
		with("next_page_url", result.NextPageURL).
		stamp(start, s.clock.Now()))
}
