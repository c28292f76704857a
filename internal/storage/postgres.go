package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/race-archive/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS collect_runs (
	id             TEXT PRIMARY KEY,
	started_at     TIMESTAMPTZ NOT NULL,
	duration_ms    BIGINT NOT NULL,
	periods        TEXT[] NOT NULL,
	with_results   BOOLEAN NOT NULL,
	records        INTEGER NOT NULL,
	with_result    INTEGER NOT NULL,
	date_fallbacks INTEGER NOT NULL,
	unknown_venues INTEGER NOT NULL,
	ended_early    BOOLEAN NOT NULL
);
CREATE TABLE IF NOT EXISTS collect_run_failures (
	run_id TEXT NOT NULL REFERENCES collect_runs(id) ON DELETE CASCADE,
	period TEXT NOT NULL,
	PRIMARY KEY (run_id, period)
);`

// PostgresStore keeps the audit log of collection runs. Records themselves
// are never persisted.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// Migrate creates the run tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, schema)
	return err
}

// SaveRun stores a run summary and its failed periods in one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, run *domain.RunSummary) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO collect_runs
		   (id, started_at, duration_ms, periods, with_results, records, with_result, date_fallbacks, unknown_venues, ended_early)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		run.ID, run.StartedAt, run.Duration.Milliseconds(), run.Periods, run.WithResults,
		run.Records, run.WithResult, run.DateFallbacks, run.UnknownVenues, run.EndedEarly,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	if len(run.FailedPeriods) > 0 {
		batch := &pgx.Batch{}
		for _, p := range run.FailedPeriods {
			batch.Queue(`INSERT INTO collect_run_failures (run_id, period) VALUES ($1, $2)
			             ON CONFLICT DO NOTHING`, run.ID, p)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting failed periods of run %s: %w", run.ID, err)
		}
	}

	return tx.Commit(ctx)
}

// RecentRuns lists the latest runs, newest first.
func (s *PostgresStore) RecentRuns(ctx context.Context, limit int) ([]domain.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		`SELECT r.id, r.started_at, r.duration_ms, r.periods, r.with_results, r.records, r.with_result,
		        r.date_fallbacks, r.unknown_venues, r.ended_early,
		        COALESCE(array_agg(f.period ORDER BY f.period) FILTER (WHERE f.period IS NOT NULL), '{}')
		   FROM collect_runs r
		   LEFT JOIN collect_run_failures f ON f.run_id = r.id
		  GROUP BY r.id
		  ORDER BY r.started_at DESC
		  LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.RunSummary
	for rows.Next() {
		var run domain.RunSummary
		var durationMS int64
		if err := rows.Scan(&run.ID, &run.StartedAt, &durationMS, &run.Periods, &run.WithResults,
			&run.Records, &run.WithResult, &run.DateFallbacks, &run.UnknownVenues, &run.EndedEarly,
			&run.FailedPeriods); err != nil {
			return nil, err
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
