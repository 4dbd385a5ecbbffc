package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/epifield/outbreak-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	study      TEXT NOT NULL,
	input      TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	strata     INTEGER NOT NULL DEFAULT 0,
	foods      INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS summary_rows (
	run_id           TEXT NOT NULL REFERENCES runs(id),
	position         INTEGER NOT NULL,
	food             TEXT NOT NULL,
	label            TEXT NOT NULL,
	odds_ratio       REAL NOT NULL,
	ci_lower         REAL NOT NULL,
	ci_upper         REAL NOT NULL,
	p_value          REAL NOT NULL,
	result_kind      TEXT NOT NULL,
	source           TEXT,
	cases_exposed    INTEGER NOT NULL,
	cases_total      INTEGER NOT NULL,
	cases_percent    REAL NOT NULL,
	controls_exposed INTEGER NOT NULL,
	controls_total   INTEGER NOT NULL,
	controls_percent REAL NOT NULL,
	PRIMARY KEY (run_id, food)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_study ON runs(study);
CREATE INDEX IF NOT EXISTS idx_summary_rows_run_id ON summary_rows(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, studyName, input string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, study, input, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, studyName, input, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
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

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, strata int, summaries []model.FoodSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, strata = ?, foods = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusComplete), strata, len(summaries), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	if err := checkRowsAffected(res, runID); err != nil {
		return err
	}

	for i, sum := range summaries {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO summary_rows (
				run_id, position, food, label,
				odds_ratio, ci_lower, ci_upper, p_value, result_kind, source,
				cases_exposed, cases_total, cases_percent,
				controls_exposed, controls_total, controls_percent
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, sum.Food, sum.Label,
			sum.Result.OddsRatio, sum.Result.CILower, sum.Result.CIUpper, sum.Result.PValue,
			string(sum.Result.Kind), sum.Result.Source,
			sum.Cases.Exposed, sum.Cases.Total, sum.Cases.Percent,
			sum.Controls.Exposed, sum.Controls.Total, sum.Controls.Percent,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert summary row %s/%s", runID, sum.Food)
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, study, input, status, strata, foods, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)

	var r model.Run
	var status string
	err := row.Scan(&r.ID, &r.Study, &r.Input, &status, &r.Strata, &r.Foods, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: run %s not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	r.Status = model.RunStatus(status)
	return &r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, study, input, status, strata, foods, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Study != "" {
		query += ` AND study = ?`
		args = append(args, filter.Study)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		if err := rows.Scan(&r.ID, &r.Study, &r.Input, &status, &r.Strata, &r.Foods, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) SummaryRows(ctx context.Context, runID string) ([]model.FoodSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT food, label, odds_ratio, ci_lower, ci_upper, p_value, result_kind, source,
			cases_exposed, cases_total, cases_percent,
			controls_exposed, controls_total, controls_percent
		FROM summary_rows WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: summary rows for %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.FoodSummary
	for rows.Next() {
		var s model.FoodSummary
		var kind string
		var source sql.NullString
		err := rows.Scan(&s.Food, &s.Label,
			&s.Result.OddsRatio, &s.Result.CILower, &s.Result.CIUpper, &s.Result.PValue,
			&kind, &source,
			&s.Cases.Exposed, &s.Cases.Total, &s.Cases.Percent,
			&s.Controls.Exposed, &s.Controls.Total, &s.Controls.Percent,
		)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary row")
		}
		s.Result.Kind = model.ResultKind(kind)
		s.Result.Source = source.String
		out = append(out, s)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate summary rows")
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run %s not found", runID)
	}
	return nil
}
