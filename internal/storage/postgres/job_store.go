// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/sitedigest/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// JobStoreConfig controls the Postgres connection pool used for job rows.
type JobStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type poolIface interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// JobStore persists job records in Postgres.
type JobStore struct {
	pool  poolIface
	table string
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "scrape_jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
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
	return &JobStore{pool: pool, table: table}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool poolIface, table string) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "scrape_jobs"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// CreateJob inserts a new job row.
func (s *JobStore) CreateJob(ctx context.Context, job scraper.Job) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, status, url, created_at)
VALUES ($1,$2,$3,$4)`, s.table)
	if _, err := s.pool.Exec(ctx, query, job.ID, string(job.Status), job.URL, job.CreatedAt); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateJobStatus moves a job to a new status. Terminal statuses stamp
// completed_at.
func (s *JobStore) UpdateJobStatus(ctx context.Context, id string, status scraper.JobStatus) error {
	var query string
	if status == scraper.JobStatusCompleted || status == scraper.JobStatusFailed {
		query = fmt.Sprintf(`UPDATE %s SET status = $2, completed_at = now() WHERE id = $1`, s.table)
	} else {
		query = fmt.Sprintf(`UPDATE %s SET status = $2 WHERE id = $1`, s.table)
	}
	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrJobNotFound
	}
	return nil
}

// CompleteJob records the terminal status together with the result
// document or error text.
func (s *JobStore) CompleteJob(ctx context.Context, id string, status scraper.JobStatus, result *scraper.ScrapeResult, errText string) error {
	var resultJSON []byte
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = b
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $2, result = $3, error_text = $4, completed_at = now()
WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id, string(status), resultJSON, errText)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrJobNotFound
	}
	return nil
}

// GetJob fetches a single job by id.
func (s *JobStore) GetJob(ctx context.Context, id string) (scraper.Job, error) {
	query := fmt.Sprintf(`
SELECT id, status, url, created_at, completed_at, result, COALESCE(error_text, '')
FROM %s WHERE id = $1`, s.table)
	row := s.pool.QueryRow(ctx, query, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.Job{}, scraper.ErrJobNotFound
		}
		return scraper.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs ordered newest first, optionally filtered by
// status.
func (s *JobStore) ListJobs(ctx context.Context, status scraper.JobStatus, limit int) ([]scraper.Job, error) {
	if limit <= 0 {
		limit = 10
	}
	var (
		query string
		args  []any
	)
	if status != "" {
		query = fmt.Sprintf(`
SELECT id, status, url, created_at, completed_at, result, COALESCE(error_text, '')
FROM %s WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, s.table)
		args = []any{string(status), limit}
	} else {
		query = fmt.Sprintf(`
SELECT id, status, url, created_at, completed_at, result, COALESCE(error_text, '')
FROM %s ORDER BY created_at DESC LIMIT $1`, s.table)
		args = []any{limit}
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []scraper.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

// DeleteJob removes a job row.
func (s *JobStore) DeleteJob(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return scraper.ErrJobNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (scraper.Job, error) {
	var (
		job         scraper.Job
		status      string
		completedAt *time.Time
		resultJSON  []byte
	)
	if err := row.Scan(&job.ID, &status, &job.URL, &job.CreatedAt, &completedAt, &resultJSON, &job.ErrorText); err != nil {
		return scraper.Job{}, err
	}
	job.Status = scraper.JobStatus(status)
	job.CompletedAt = completedAt
	if len(resultJSON) > 0 {
		var result scraper.ScrapeResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return scraper.Job{}, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &result
	}
	return job, nil
}
