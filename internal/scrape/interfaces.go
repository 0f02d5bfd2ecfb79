package scrape

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors shared by store implementations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ProjectStore persists project definitions. List operations treat a limit
// of zero or less as unbounded.
type ProjectStore interface {
	CreateProject(ctx context.Context, project Project) error
	GetProject(ctx context.Context, slug string) (Project, error)
	ListProjects(ctx context.Context, limit int) ([]Project, error)
	UpdateProjectStatus(ctx context.Context, slug string, status ProjectStatus) error
	DeleteProject(ctx context.Context, slug string) error
}

// ResultStore persists runs, fetch results, and extracted records. List
// operations treat a limit of zero or less as unbounded.
type ResultStore interface {
	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, errText string, counters RunCounters) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, projectID string, limit, offset int) ([]Run, error)
	LatestRun(ctx context.Context, projectID string) (Run, error)
	RecordFetch(ctx context.Context, fetch FetchResult) error
	// InsertRecord persists a record unless its dedup key is already known
	// for the project; it reports whether the record was new.
	InsertRecord(ctx context.Context, record Record) (bool, error)
	ListRecords(ctx context.Context, projectID string, limit, offset int) ([]Record, error)
	CountRecords(ctx context.Context, projectID string) (int, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes run completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a probe response warrants a headless
// refetch under the project's extraction rules.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse, rules RuleSet) bool
}

// Extractor turns a fetched page into structured field maps.
type Extractor interface {
	Extract(rules RuleSet, pageURL string, body []byte) (PageResult, error)
}

// RobotsPolicy answers whether a URL may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) (bool, error)
}

// HostLimiter throttles outbound fetches per host.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Queue provides enqueue/dequeue semantics for scrape runs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
	// KeyHash derives a stable dedup key from a project ID and record
	// fields, optionally restricted to keyFields.
	KeyHash(projectID string, fields map[string]string, keyFields []string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and record IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
