package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/zonematch/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS match_runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'in_progress',
	stats      TEXT NOT NULL DEFAULT '{}',
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS zone_matches (
	run_id   TEXT NOT NULL REFERENCES match_runs(id) ON DELETE CASCADE,
	line     INTEGER NOT NULL,
	lon      REAL NOT NULL,
	lat      REAL NOT NULL,
	ts       TEXT NOT NULL,
	subtotal TEXT NOT NULL,
	layer    TEXT,
	code     TEXT,
	matched  INTEGER NOT NULL,
	tax_rate TEXT,
	tax      TEXT,
	total    TEXT,
	PRIMARY KEY (run_id, line)
);

CREATE INDEX IF NOT EXISTS idx_match_runs_status ON match_runs(status);
CREATE INDEX IF NOT EXISTS idx_zone_matches_code ON zone_matches(layer, code);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO match_runs (id, source, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, source, string(model.RunStatusInProgress), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}
	status, errText := finalStatus(runErr)

	res, err := s.db.ExecContext(ctx,
		`UPDATE match_runs SET status = ?, stats = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(status), string(statsJSON), errText, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// SaveProgress records the stats of a run still in progress.
func (s *SQLiteStore) SaveProgress(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE match_runs SET stats = ?, updated_at = ? WHERE id = ?`,
		string(statsJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save progress for run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// ReopenRun marks a run in progress again, clears its error, and deletes
// its rows past afterLine. It returns the number of rows deleted.
func (s *SQLiteStore) ReopenRun(ctx context.Context, runID string, afterLine int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: reopen run %s", runID)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx,
		`UPDATE match_runs SET status = ?, error = NULL, updated_at = ? WHERE id = ?`,
		string(model.RunStatusInProgress), time.Now().UTC(), runID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: reopen run %s", runID)
	}
	if err := checkRowsAffected(res, runID); err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM zone_matches WHERE run_id = ? AND line > ?`, runID, afterLine)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: trim rows of run %s", runID)
	}
	dropped, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrapf(err, "sqlite: reopen run %s", runID)
	}
	return dropped, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, status, stats, error, created_at, updated_at FROM match_runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, status, stats, error, created_at, updated_at FROM match_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, filter.Source)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// WriteRows inserts rows in a single transaction with a prepared statement.
func (s *SQLiteStore) WriteRows(ctx context.Context, runID string, rows []model.MatchedRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO zone_matches (run_id, line, lon, lat, ts, subtotal, layer, code, matched, tax_rate, tax, total) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, runID, r.Line, r.Lon, r.Lat, r.Timestamp, r.Subtotal,
			nullable(r.Layer), nullable(r.Code), r.Matched,
			nullable(r.TaxRate), nullable(r.Tax), nullable(r.Total)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert row %d for run %s", r.Line, runID)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit rows")
	}
	return int64(len(rows)), nil
}

func (s *SQLiteStore) CountRows(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM zone_matches WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: count rows for run %s", runID)
	}
	return n, nil
}

// ListRows returns the stored rows of a run in input order.
func (s *SQLiteStore) ListRows(ctx context.Context, runID string) ([]model.MatchedRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT line, lon, lat, ts, subtotal, layer, code, matched, tax_rate, tax, total FROM zone_matches WHERE run_id = ? ORDER BY line`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list rows for run %s", runID)
	}
	defer rows.Close()

	var out []model.MatchedRow
	for rows.Next() {
		var r model.MatchedRow
		var layer, code, taxRate, tax, total sql.NullString
		if err := rows.Scan(&r.Line, &r.Lon, &r.Lat, &r.Timestamp, &r.Subtotal, &layer, &code, &r.Matched,
			&taxRate, &tax, &total); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan row")
		}
		r.Layer = layer.String
		r.Code = code.String
		r.TaxRate = taxRate.String
		r.Tax = tax.String
		r.Total = total.String
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list rows iterate")
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "sqlite: run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var status, statsJSON string
	var errText sql.NullString

	if err := row.Scan(&r.ID, &r.Source, &status, &statsJSON, &errText, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.Error = errText.String
	if err := json.Unmarshal([]byte(statsJSON), &r.Stats); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal stats")
	}
	return &r, nil
}
