// Package registry persists project definitions.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapekit/scrapper/internal/scrape"
)

const uniqueViolation = "23505"

// PostgresConfig controls the Postgres connection pool used for projects.
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

// Postgres implements scrape.ProjectStore on a pgx pool.
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

// CreateProject inserts a project row. A slug collision yields
// scrape.ErrAlreadyExists.
func (s *Postgres) CreateProject(ctx context.Context, project scrape.Project) error {
	rulesJSON, err := json.Marshal(project.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	query := `
INSERT INTO projects (
	id, slug, name, target_url, rules, interval_seconds,
	status, max_pages, headless_allowed, respect_robots,
	created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err = s.pool.Exec(ctx, query,
		project.ID,
		project.Slug,
		project.Name,
		project.TargetURL,
		rulesJSON,
		project.IntervalSeconds,
		string(project.Status),
		project.MaxPages,
		project.HeadlessAllowed,
		project.RespectRobots,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return scrape.ErrAlreadyExists
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

const projectColumns = `id, slug, name, target_url, rules, interval_seconds,
	status, max_pages, headless_allowed, respect_robots, created_at, updated_at`

// GetProject loads one project by slug.
func (s *Postgres) GetProject(ctx context.Context, slug string) (scrape.Project, error) {
	query := fmt.Sprintf(`SELECT %s FROM projects WHERE slug = $1`, projectColumns)
	row := s.pool.QueryRow(ctx, query, slug)
	project, err := scanProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return scrape.Project{}, scrape.ErrNotFound
	}
	if err != nil {
		return scrape.Project{}, fmt.Errorf("get project: %w", err)
	}
	return project, nil
}

// ListProjects returns projects ordered by creation time, newest first.
// A limit of zero or less returns everything.
func (s *Postgres) ListProjects(ctx context.Context, limit int) ([]scrape.Project, error) {
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	query := fmt.Sprintf(`SELECT %s FROM projects ORDER BY created_at DESC LIMIT $1`, projectColumns)
	rows, err := s.pool.Query(ctx, query, limitArg)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []scrape.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// UpdateProjectStatus flips a project between active and paused.
func (s *Postgres) UpdateProjectStatus(ctx context.Context, slug string, status scrape.ProjectStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET status = $2, updated_at = now() WHERE slug = $1`,
		slug, string(status),
	)
	if err != nil {
		return fmt.Errorf("update project status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scrape.ErrNotFound
	}
	return nil
}

// DeleteProject removes a project. Runs and records cascade in the schema.
func (s *Postgres) DeleteProject(ctx context.Context, slug string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE slug = $1`, slug)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scrape.ErrNotFound
	}
	return nil
}

func scanProject(row pgx.Row) (scrape.Project, error) {
	var (
		project   scrape.Project
		rulesJSON []byte
		status    string
	)
	err := row.Scan(
		&project.ID,
		&project.Slug,
		&project.Name,
		&project.TargetURL,
		&rulesJSON,
		&project.IntervalSeconds,
		&status,
		&project.MaxPages,
		&project.HeadlessAllowed,
		&project.RespectRobots,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return scrape.Project{}, err
	}
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &project.Rules); err != nil {
			return scrape.Project{}, fmt.Errorf("unmarshal rules: %w", err)
		}
	}
	project.Status = scrape.ProjectStatus(status)
	return project, nil
}
