package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements scraper.RunStore on the scrape_runs and run_jobs tables.
type RunStore struct {
	pool queryer
}

// NewRunStore connects to dsn.
func NewRunStore(ctx context.Context, dsn string) (*RunStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool wraps an existing pool.
func NewRunStoreWithPool(pool queryer) *RunStore {
	return &RunStore{pool: pool}
}

// Close closes the underlying connection pool.
func (s *RunStore) Close() {
	s.pool.Close()
}

// CreateRun inserts a queued run.
func (s *RunStore) CreateRun(ctx context.Context, run scraper.Run) error {
	queries, err := json.Marshal(nonNil(run.Queries))
	if err != nil {
		return fmt.Errorf("marshal queries: %w", err)
	}
	status := run.Status
	if status == "" {
		status = scraper.RunStatusQueued
	}
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := `
		INSERT INTO scrape_runs (id, status, queries, created_at)
		VALUES ($1, $2, $3, $4);
	`
	if _, err := s.pool.Exec(ctx, query, run.ID, string(status), queries, createdAt); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// MarkRunning moves a non-terminal run to running.
func (s *RunStore) MarkRunning(ctx context.Context, runID string) error {
	query := `
		UPDATE scrape_runs
		SET status = $1, started_at = COALESCE(started_at, now())
		WHERE id = $2 AND status NOT IN ('succeeded', 'failed', 'cancelled');
	`
	return s.execOne(ctx, "mark run running", query, string(scraper.RunStatusRunning), runID)
}

// AppendJob stores one scraped record under the run.
func (s *RunStore) AppendJob(ctx context.Context, runID string, job scraper.JobRecord) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.JobID, err)
	}
	query := `
		WITH bumped AS (
			UPDATE scrape_runs SET jobs = jobs + 1 WHERE id = $1 RETURNING jobs
		)
		INSERT INTO run_jobs (run_id, seq, job_id, payload)
		SELECT $1, jobs, $2, $3 FROM bumped;
	`
	return s.execOne(ctx, "append job", query, runID, job.JobID, payload)
}

// RecordMetrics stores the latest counters reported for the run.
func (s *RunStore) RecordMetrics(ctx context.Context, runID string, metrics scraper.Metrics) error {
	query := `
		UPDATE scrape_runs SET processed = $1, failed = $2, missed = $3
		WHERE id = $4;
	`
	return s.execOne(ctx, "record metrics", query, metrics.Processed, metrics.Failed, metrics.Missed, runID)
}

// RecordError counts one reported error.
func (s *RunStore) RecordError(ctx context.Context, runID string) error {
	query := `UPDATE scrape_runs SET errors = errors + 1 WHERE id = $1;`
	return s.execOne(ctx, "record error", query, runID)
}

// FinishRun moves the run to a terminal status unless it already has one.
func (s *RunStore) FinishRun(ctx context.Context, runID string, status scraper.RunStatus, errText string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	query := `
		UPDATE scrape_runs
		SET status = $1, error_message = $2, finished_at = now()
		WHERE id = $3 AND status NOT IN ('succeeded', 'failed', 'cancelled');
	`
	if _, err := s.pool.Exec(ctx, query, string(status), errText, runID); err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (scraper.Run, error) {
	query := `
		SELECT id, status, queries, processed, failed, missed, errors, jobs,
			error_message, created_at, started_at, finished_at
		FROM scrape_runs
		WHERE id = $1;
	`
	var (
		run     scraper.Run
		status  string
		queries []byte
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&status,
		&queries,
		&run.Metrics.Processed,
		&run.Metrics.Failed,
		&run.Metrics.Missed,
		&run.Errors,
		&run.Jobs,
		&run.ErrorText,
		&run.CreatedAt,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return scraper.Run{}, scraper.ErrRunNotFound
		}
		return scraper.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	run.Status = scraper.RunStatus(status)
	if err := json.Unmarshal(queries, &run.Queries); err != nil {
		return scraper.Run{}, fmt.Errorf("decode run queries: %w", err)
	}
	return run, nil
}

// ListJobs returns the run's records in the order they were appended.
func (s *RunStore) ListJobs(ctx context.Context, runID string) ([]scraper.JobRecord, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	query := `
		SELECT payload FROM run_jobs
		WHERE run_id = $1
		ORDER BY seq;
	`
	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []scraper.JobRecord{}
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		var job scraper.JobRecord
		if err := json.Unmarshal(payload, &job); err != nil {
			return nil, fmt.Errorf("decode job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

func (s *RunStore) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, scraper.ErrRunNotFound)
	}
	return nil
}
