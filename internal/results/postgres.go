// Package results persists runs, fetch results, and extracted records.
package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapekit/scrapper/internal/scrape"
)

// PostgresConfig controls the Postgres connection pool used for run data.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Postgres implements scrape.ResultStore on a pgx pool.
type Postgres struct {
	pool dbPool
}

// NewPostgres connects a pool and returns the store.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// NewPostgresWithPool constructs a store from an existing pool (primarily for testing).
func NewPostgresWithPool(pool dbPool) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Postgres) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateRun inserts a queued run row.
func (s *Postgres) CreateRun(ctx context.Context, run scrape.Run) error {
	countersJSON, err := json.Marshal(run.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	query := `
INSERT INTO runs (
	id, project_id, status, "trigger", submitted_at, error_text, counters
) VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = s.pool.Exec(ctx, query,
		run.ID,
		run.ProjectID,
		string(run.Status),
		string(run.Trigger),
		run.Submitted,
		run.ErrorText,
		countersJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunStatus transitions a run. started_at is stamped on the move to
// running and finished_at on any terminal status.
func (s *Postgres) UpdateRunStatus(ctx context.Context, runID string, status scrape.RunStatus, errText string, counters scrape.RunCounters) error {
	countersJSON, err := json.Marshal(counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}
	query := `
UPDATE runs SET
	status = $2,
	error_text = $3,
	counters = $4,
	started_at = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
	finished_at = CASE WHEN $2 IN ('succeeded','partial','failed','canceled') THEN now() ELSE finished_at END
WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, runID, string(status), errText, countersJSON)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scrape.ErrNotFound
	}
	return nil
}

const runColumns = `id, project_id, status, "trigger", submitted_at, started_at,
	finished_at, error_text, counters`

// GetRun loads one run by ID.
func (s *Postgres) GetRun(ctx context.Context, runID string) (scrape.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE id = $1`, runColumns)
	run, err := scanRun(s.pool.QueryRow(ctx, query, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Run{}, scrape.ErrNotFound
	}
	if err != nil {
		return scrape.Run{}, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRuns returns runs for a project, newest first. An empty projectID
// lists runs across all projects; limit <= 0 returns everything.
func (s *Postgres) ListRuns(ctx context.Context, projectID string, limit, offset int) ([]scrape.Run, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if projectID == "" {
		query := fmt.Sprintf(`SELECT %s FROM runs ORDER BY submitted_at DESC LIMIT $1 OFFSET $2`, runColumns)
		rows, err = s.pool.Query(ctx, query, limitArg(limit), offset)
	} else {
		query := fmt.Sprintf(`SELECT %s FROM runs WHERE project_id = $1 ORDER BY submitted_at DESC LIMIT $2 OFFSET $3`, runColumns)
		rows, err = s.pool.Query(ctx, query, projectID, limitArg(limit), offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []scrape.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recently submitted run for a project.
func (s *Postgres) LatestRun(ctx context.Context, projectID string) (scrape.Run, error) {
	query := fmt.Sprintf(`SELECT %s FROM runs WHERE project_id = $1 ORDER BY submitted_at DESC LIMIT 1`, runColumns)
	run, err := scanRun(s.pool.QueryRow(ctx, query, projectID))
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Run{}, scrape.ErrNotFound
	}
	if err != nil {
		return scrape.Run{}, fmt.Errorf("latest run: %w", err)
	}
	return run, nil
}

// RecordFetch inserts one fetched-page row.
func (s *Postgres) RecordFetch(ctx context.Context, fetch scrape.FetchResult) error {
	headersJSON, err := json.Marshal(normalizeHeaders(fetch.Headers))
	if err != nil {
		return fmt.Errorf("marshal headers: %w", err)
	}
	query := `
INSERT INTO fetches (
	run_id, project_id, url, status_code, used_headless,
	fetched_at, duration_ms, content_hash, blob_uri, headers
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	_, err = s.pool.Exec(ctx, query,
		fetch.RunID,
		fetch.ProjectID,
		fetch.URL,
		fetch.StatusCode,
		fetch.UsedHeadless,
		fetch.FetchedAt,
		fetch.DurationMs,
		fetch.ContentHash,
		fetch.BlobURI,
		headersJSON,
	)
	if err != nil {
		return fmt.Errorf("insert fetch: %w", err)
	}
	return nil
}

// InsertRecord persists a record unless its dedup key is already known for
// the project. ON CONFLICT DO NOTHING keeps the first sighting.
func (s *Postgres) InsertRecord(ctx context.Context, record scrape.Record) (bool, error) {
	fieldsJSON, err := json.Marshal(record.Fields)
	if err != nil {
		return false, fmt.Errorf("marshal fields: %w", err)
	}
	query := `
INSERT INTO records (
	id, project_id, run_id, fetch_url, dedup_key, fields, extracted_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (project_id, dedup_key) DO NOTHING`

	tag, err := s.pool.Exec(ctx, query,
		record.ID,
		record.ProjectID,
		record.RunID,
		record.FetchURL,
		record.DedupKey,
		fieldsJSON,
		record.ExtractedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListRecords returns records for a project, newest first. A limit of zero
// or less returns everything.
func (s *Postgres) ListRecords(ctx context.Context, projectID string, limit, offset int) ([]scrape.Record, error) {
	query := `
SELECT id, project_id, run_id, fetch_url, dedup_key, fields, extracted_at
FROM records WHERE project_id = $1
ORDER BY extracted_at DESC, id DESC
LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, projectID, limitArg(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []scrape.Record
	for rows.Next() {
		var (
			record     scrape.Record
			fieldsJSON []byte
		)
		err := rows.Scan(
			&record.ID,
			&record.ProjectID,
			&record.RunID,
			&record.FetchURL,
			&record.DedupKey,
			&fieldsJSON,
			&record.ExtractedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if len(fieldsJSON) > 0 {
			if err := json.Unmarshal(fieldsJSON, &record.Fields); err != nil {
				return nil, fmt.Errorf("unmarshal fields: %w", err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// CountRecords returns the number of stored records for a project.
func (s *Postgres) CountRecords(ctx context.Context, projectID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM records WHERE project_id = $1`, projectID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return count, nil
}

// limitArg renders a row cap as a LIMIT argument. A nil argument becomes
// LIMIT NULL, which Postgres treats as no cap.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func scanRun(row pgx.Row) (scrape.Run, error) {
	var (
		run          scrape.Run
		status       string
		trigger      string
		countersJSON []byte
	)
	err := row.Scan(
		&run.ID,
		&run.ProjectID,
		&status,
		&trigger,
		&run.Submitted,
		&run.Started,
		&run.Finished,
		&run.ErrorText,
		&countersJSON,
	)
	if err != nil {
		return scrape.Run{}, err
	}
	if len(countersJSON) > 0 {
		if err := json.Unmarshal(countersJSON, &run.Counters); err != nil {
			return scrape.Run{}, fmt.Errorf("unmarshal counters: %w", err)
		}
	}
	run.Status = scrape.RunStatus(status)
	run.Trigger = scrape.RunTrigger(trigger)
	return run, nil
}

func normalizeHeaders(h http.Header) map[string][]string {
	if len(h) == 0 {
		return map[string][]string{}
	}
	out := make(map[string][]string, len(h))
	for k, values := range h {
		out[k] = append([]string(nil), values...)
	}
	return out
}
