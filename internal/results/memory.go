package results

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/scrapekit/scrapper/internal/scrape"
)

// Memory is an in-process scrape.ResultStore used by tests and the
// standalone CLI mode.
type Memory struct {
	mu      sync.RWMutex
	runs    map[string]scrape.Run
	fetches []scrape.FetchResult
	records []scrape.Record
	seen    map[string]map[string]struct{}
}

// NewMemory returns an empty in-memory result store.
func NewMemory() *Memory {
	return &Memory{
		runs: make(map[string]scrape.Run),
		seen: make(map[string]map[string]struct{}),
	}
}

// CreateRun stores a queued run.
func (m *Memory) CreateRun(_ context.Context, run scrape.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return scrape.ErrAlreadyExists
	}
	m.runs[run.ID] = run
	return nil
}

// UpdateRunStatus transitions a run and stamps started/finished times.
func (m *Memory) UpdateRunStatus(_ context.Context, runID string, status scrape.RunStatus, errText string, counters scrape.RunCounters) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return scrape.ErrNotFound
	}
	now := time.Now().UTC()
	if status == scrape.RunStatusRunning && run.Started == nil {
		run.Started = &now
	}
	if status.Terminal() {
		run.Finished = &now
	}
	run.Status = status
	run.ErrorText = errText
	run.Counters = counters
	m.runs[runID] = run
	return nil
}

// GetRun loads one run by ID.
func (m *Memory) GetRun(_ context.Context, runID string) (scrape.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return scrape.Run{}, scrape.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs for a project, newest first. An empty projectID
// lists runs across all projects; limit <= 0 returns everything.
func (m *Memory) ListRuns(_ context.Context, projectID string, limit, offset int) ([]scrape.Run, error) {
	m.mu.RLock()
	runs := make([]scrape.Run, 0, len(m.runs))
	for _, run := range m.runs {
		if projectID == "" || run.ProjectID == projectID {
			runs = append(runs, run)
		}
	}
	m.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Submitted.Equal(runs[j].Submitted) {
			return runs[i].ID > runs[j].ID
		}
		return runs[i].Submitted.After(runs[j].Submitted)
	})
	return paginate(runs, limit, offset), nil
}

// LatestRun returns the most recently submitted run for a project.
func (m *Memory) LatestRun(ctx context.Context, projectID string) (scrape.Run, error) {
	runs, err := m.ListRuns(ctx, projectID, 1, 0)
	if err != nil {
		return scrape.Run{}, err
	}
	if len(runs) == 0 {
		return scrape.Run{}, scrape.ErrNotFound
	}
	return runs[0], nil
}

// RecordFetch appends one fetched-page row.
func (m *Memory) RecordFetch(_ context.Context, fetch scrape.FetchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches = append(m.fetches, fetch)
	return nil
}

// Fetches returns a copy of all stored fetch rows.
func (m *Memory) Fetches() []scrape.FetchResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]scrape.FetchResult(nil), m.fetches...)
}

// InsertRecord persists a record unless its dedup key is already known for
// the project; it reports whether the record was new.
func (m *Memory) InsertRecord(_ context.Context, record scrape.Record) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ok := m.seen[record.ProjectID]
	if !ok {
		keys = make(map[string]struct{})
		m.seen[record.ProjectID] = keys
	}
	if _, dup := keys[record.DedupKey]; dup {
		return false, nil
	}
	keys[record.DedupKey] = struct{}{}
	m.records = append(m.records, record)
	return true, nil
}

// ListRecords returns records for a project, newest first.
func (m *Memory) ListRecords(_ context.Context, projectID string, limit, offset int) ([]scrape.Record, error) {
	m.mu.RLock()
	records := make([]scrape.Record, 0, len(m.records))
	for _, record := range m.records {
		if record.ProjectID == projectID {
			records = append(records, record)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].ExtractedAt.After(records[j].ExtractedAt)
	})
	return paginate(records, limit, offset), nil
}

// CountRecords returns the number of stored records for a project.
func (m *Memory) CountRecords(_ context.Context, projectID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, record := range m.records {
		if record.ProjectID == projectID {
			count++
		}
	}
	return count, nil
}

// paginate applies offset and limit to a sorted slice. A limit of zero or
// less means no cap.
func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
