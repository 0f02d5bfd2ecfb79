// Package scrape defines core types shared across subsystems.
package scrape

import (
	"net/http"
	"time"
)

// ProjectStatus represents the lifecycle state of a scrape project.
type ProjectStatus string

// Project status values persisted in the registry.
const (
	ProjectStatusActive ProjectStatus = "active"
	ProjectStatusPaused ProjectStatus = "paused"
)

// FieldRule maps a CSS selector onto a named record field.
type FieldRule struct {
	Name       string `json:"name" mapstructure:"name"`
	Selector   string `json:"selector" mapstructure:"selector"`
	Attr       string `json:"attr,omitempty" mapstructure:"attr"`
	TrimPrefix string `json:"trim_prefix,omitempty" mapstructure:"trim_prefix"`
}

// RuleSet describes how records are extracted from a fetched page. When
// DetailSelector is set, each list item's detail link is followed and
// DetailFields are extracted from the linked page to enrich the record.
type RuleSet struct {
	ListSelector     string      `json:"list_selector" mapstructure:"list_selector"`
	Fields           []FieldRule `json:"fields" mapstructure:"fields"`
	NextPageSelector string      `json:"next_page_selector,omitempty" mapstructure:"next_page_selector"`
	KeyFields        []string    `json:"key_fields,omitempty" mapstructure:"key_fields"`
	DetailSelector   string      `json:"detail_selector,omitempty" mapstructure:"detail_selector"`
	DetailFields     []FieldRule `json:"detail_fields,omitempty" mapstructure:"detail_fields"`
}

// Project is the unit of scraping configuration stored in the registry.
type Project struct {
	ID              string        `json:"id"`
	Slug            string        `json:"slug"`
	Name            string        `json:"name"`
	TargetURL       string        `json:"target_url"`
	Rules           RuleSet       `json:"rules"`
	IntervalSeconds int           `json:"interval_seconds"`
	Status          ProjectStatus `json:"status"`
	MaxPages        int           `json:"max_pages"`
	HeadlessAllowed bool          `json:"headless_allowed"`
	RespectRobots   bool          `json:"respect_robots"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// RunStatus represents the lifecycle state of a scrape run.
type RunStatus string

// Run status values persisted in the result store.
const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusPartial, RunStatusFailed, RunStatusCanceled:
		return true
	default:
		return false
	}
}

// RunTrigger records what initiated a run.
type RunTrigger string

// Supported run triggers.
const (
	TriggerManual    RunTrigger = "manual"
	TriggerScheduled RunTrigger = "scheduled"
)

// RunCounters tracks per-run fetch and extraction stats.
type RunCounters struct {
	PagesFetched     int  `json:"pages_fetched"`
	PagesFailed      int  `json:"pages_failed"`
	RecordsExtracted int  `json:"records_extracted"`
	RecordsNew       int  `json:"records_new"`
	RecordsDuplicate int  `json:"records_duplicate"`
	Retries          int  `json:"retries"`
	UsedHeadless     bool `json:"used_headless"`
}

// Run represents one execution of a project's fetch-parse-store cycle.
type Run struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	Status    RunStatus   `json:"status"`
	Trigger   RunTrigger  `json:"trigger"`
	Submitted time.Time   `json:"submitted_at"`
	Started   *time.Time  `json:"started_at,omitempty"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
	Counters  RunCounters `json:"counters"`
}

// FetchResult is persisted for each fetched page.
type FetchResult struct {
	RunID        string      `json:"run_id"`
	ProjectID    string      `json:"project_id"`
	URL          string      `json:"url"`
	StatusCode   int         `json:"status_code"`
	UsedHeadless bool        `json:"used_headless"`
	FetchedAt    time.Time   `json:"fetched_at"`
	DurationMs   int64       `json:"duration_ms"`
	ContentHash  string      `json:"content_hash"`
	BlobURI      string      `json:"blob_uri"`
	Headers      http.Header `json:"headers,omitempty"`
}

// Record is one structured record extracted from a fetch result.
type Record struct {
	ID          string            `json:"id"`
	ProjectID   string            `json:"project_id"`
	RunID       string            `json:"run_id"`
	FetchURL    string            `json:"fetch_url"`
	DedupKey    string            `json:"dedup_key"`
	Fields      map[string]string `json:"fields"`
	ExtractedAt time.Time         `json:"extracted_at"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	RunID       string
	URL         string
	UseHeadless bool
	Headers     http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// PageResult is what the extractor produces for one page. DetailURLs is
// parallel to Fields; an entry is empty when the item carried no detail
// link.
type PageResult struct {
	Fields      []map[string]string
	DetailURLs  []string
	NextPageURL string
}

// QueueItem wraps a run ready to execute.
type QueueItem struct {
	RunID     string
	Project   Project
	Trigger   RunTrigger
	Submitted int64
}
