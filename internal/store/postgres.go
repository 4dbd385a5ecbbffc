package store

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/epifield/outbreak-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store needs. pgxmock
// satisfies it, which keeps the Postgres store testable without a
// server.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	study      TEXT NOT NULL,
	input      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	strata     INTEGER NOT NULL DEFAULT 0,
	foods      INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS summary_rows (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	position         INTEGER NOT NULL,
	food             TEXT NOT NULL,
	label            TEXT NOT NULL,
	odds_ratio       DOUBLE PRECISION NOT NULL,
	ci_lower         DOUBLE PRECISION NOT NULL,
	ci_upper         DOUBLE PRECISION NOT NULL,
	p_value          DOUBLE PRECISION NOT NULL,
	result_kind      TEXT NOT NULL,
	source           TEXT,
	cases_exposed    INTEGER NOT NULL,
	cases_total      INTEGER NOT NULL,
	cases_percent    DOUBLE PRECISION NOT NULL,
	controls_exposed INTEGER NOT NULL,
	controls_total   INTEGER NOT NULL,
	controls_percent DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, food)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_study ON runs(study);
CREATE INDEX IF NOT EXISTS idx_summary_rows_run_id ON summary_rows(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, studyName, input string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, study, input, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, studyName, input, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Study:     studyName,
		Input:     input,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, strata int, summaries []model.FoodSummary) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE runs SET status = $1, strata = $2, foods = $3, updated_at = $4 WHERE id = $5`,
		string(model.RunStatusComplete), strata, len(summaries), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}

	for i, sum := range summaries {
		_, err := tx.Exec(ctx,
			`INSERT INTO summary_rows (
				run_id, position, food, label,
				odds_ratio, ci_lower, ci_upper, p_value, result_kind, source,
				cases_exposed, cases_total, cases_percent,
				controls_exposed, controls_total, controls_percent
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			runID, i, sum.Food, sum.Label,
			sum.Result.OddsRatio, sum.Result.CILower, sum.Result.CIUpper, sum.Result.PValue,
			string(sum.Result.Kind), sum.Result.Source,
			sum.Cases.Exposed, sum.Cases.Total, sum.Cases.Percent,
			sum.Controls.Exposed, sum.Controls.Total, sum.Controls.Percent,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert summary row %s/%s", runID, sum.Food)
		}
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, study, input, status, strata, foods, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)

	var r model.Run
	var status string
	err := row.Scan(&r.ID, &r.Study, &r.Input, &status, &r.Strata, &r.Foods, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, study, input, status, strata, foods, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $1`
	}
	if filter.Study != "" {
		args = append(args, filter.Study)
		query += ` AND study = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, filter.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		if err := rows.Scan(&r.ID, &r.Study, &r.Input, &status, &r.Strata, &r.Foods, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) SummaryRows(ctx context.Context, runID string) ([]model.FoodSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT food, label, odds_ratio, ci_lower, ci_upper, p_value, result_kind, source,
			cases_exposed, cases_total, cases_percent,
			controls_exposed, controls_total, controls_percent
		FROM summary_rows WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: summary rows for %s", runID)
	}
	defer rows.Close()

	var out []model.FoodSummary
	for rows.Next() {
		var fs model.FoodSummary
		var kind string
		var source sql.NullString
		err := rows.Scan(&fs.Food, &fs.Label,
			&fs.Result.OddsRatio, &fs.Result.CILower, &fs.Result.CIUpper, &fs.Result.PValue,
			&kind, &source,
			&fs.Cases.Exposed, &fs.Cases.Total, &fs.Cases.Percent,
			&fs.Controls.Exposed, &fs.Controls.Total, &fs.Controls.Percent,
		)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary row")
		}
		fs.Result.Kind = model.ResultKind(kind)
		fs.Result.Source = source.String
		out = append(out, fs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate summary rows")
}

