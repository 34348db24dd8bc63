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
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/realtime-job-scraper/internal/scraper"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "jobs"

// JobStoreConfig controls the Postgres connection pool used for job rows.
type JobStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// JobStore upserts scraped job records keyed by LinkedIn job ID.
type JobStore struct {
	pool   txBeginner
	table  string
	upsert string
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig) (*JobStore, error) {
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
	store, err := NewJobStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool txBeginner, table string) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{pool: pool, table: table, upsert: upsertStatement(table)}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveJobs upserts jobs in one transaction. A job seen again replaces the
// previous row and is attributed to the latest run.
func (s *JobStore) SaveJobs(ctx context.Context, runID string, jobs []scraper.JobRecord) (err error) {
	if s == nil || s.pool == nil {
		return fmt.Errorf("job store is not configured")
	}
	if len(jobs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
	}()

	for _, job := range jobs {
		if job.JobID == "" {
			return fmt.Errorf("job id is required")
		}
		insights, mErr := json.Marshal(nonNil(job.Insights))
		if mErr != nil {
			return fmt.Errorf("marshal insights for job %s: %w", job.JobID, mErr)
		}
		if _, err = tx.Exec(ctx, s.upsert,
			job.JobID,
			runID,
			job.Query,
			job.Location,
			job.Title,
			job.Company,
			job.CompanyLink,
			job.CompanyImgLink,
			job.Place,
			job.Date,
			job.Link,
			job.ApplyLink,
			insights,
			job.Description,
			job.DescriptionHTML,
		); err != nil {
			return fmt.Errorf("upsert job %s: %w", job.JobID, err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit jobs: %w", err)
	}
	return nil
}

func upsertStatement(table string) string {
	return fmt.Sprintf(`
INSERT INTO %s (
	job_id,
	run_id,
	query,
	location,
	title,
	company,
	company_link,
	company_img_link,
	place,
	posted_date,
	link,
	apply_link,
	insights,
	description,
	description_html,
	scraped_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now()
)
ON CONFLICT (job_id) DO UPDATE SET
	run_id = EXCLUDED.run_id,
	query = EXCLUDED.query,
	location = EXCLUDED.location,
	title = EXCLUDED.title,
	company = EXCLUDED.company,
	company_link = EXCLUDED.company_link,
	company_img_link = EXCLUDED.company_img_link,
	place = EXCLUDED.place,
	posted_date = EXCLUDED.posted_date,
	link = EXCLUDED.link,
	apply_link = EXCLUDED.apply_link,
	insights = EXCLUDED.insights,
	description = EXCLUDED.description,
	description_html = EXCLUDED.description_html,
	scraped_at = EXCLUDED.scraped_at`, table)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
