package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rotisserie/eris"

	"github.com/sells-group/zonematch/internal/db"
	"github.com/sells-group/zonematch/internal/model"
)

// matchColumns is the COPY column order for zone_matches.
var matchColumns = []string{"run_id", "line", "lon", "lat", "ts", "subtotal", "layer", "code", "matched", "tax_rate", "tax", "total"}

// PostgresStore implements Store over a db.Pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres opens a pool for connString and returns a store over it.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool returns a store over an existing pool. Close does not
// close the pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool, shared with the PostGIS zone
// loader.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS match_runs (
	id         TEXT PRIMARY KEY,
	source     TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'in_progress',
	stats      JSONB NOT NULL DEFAULT '{}',
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS zone_matches (
	run_id   TEXT NOT NULL REFERENCES match_runs(id) ON DELETE CASCADE,
	line     BIGINT NOT NULL,
	lon      DOUBLE PRECISION NOT NULL,
	lat      DOUBLE PRECISION NOT NULL,
	ts       TEXT NOT NULL,
	subtotal TEXT NOT NULL,
	layer    TEXT,
	code     TEXT,
	matched  BOOLEAN NOT NULL,
	tax_rate NUMERIC(8, 5),
	tax      NUMERIC(14, 2),
	total    NUMERIC(14, 2),
	PRIMARY KEY (run_id, line)
);

CREATE INDEX IF NOT EXISTS idx_match_runs_status ON match_runs(status);
CREATE INDEX IF NOT EXISTS idx_zone_matches_code ON zone_matches(layer, code);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, source string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO match_runs (id, source, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, source, string(model.RunStatusInProgress), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Source:    source,
		Status:    model.RunStatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, stats model.RunStats, runErr error) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	status, errText := finalStatus(runErr)

	tag, err := s.pool.Exec(ctx,
		`UPDATE match_runs SET status = $1, stats = $2, error = $3, updated_at = $4 WHERE id = $5`,
		string(status), statsJSON, errText, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "postgres: complete run %s", runID)
	}
	return nil
}

// SaveProgress records the stats of a run still in progress.
func (s *PostgresStore) SaveProgress(ctx context.Context, runID string, stats model.RunStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE match_runs SET stats = $1, updated_at = $2 WHERE id = $3`,
		statsJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save progress for run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrRunNotFound, "postgres: save progress for run %s", runID)
	}
	return nil
}

// ReopenRun marks a run in progress again, clears its error, and deletes
// its rows past afterLine. It returns the number of rows deleted.
func (s *PostgresStore) ReopenRun(ctx context.Context, runID string, afterLine int64) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: reopen run %s", runID)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx,
		`UPDATE match_runs SET status = $1, error = NULL, updated_at = $2 WHERE id = $3`,
		string(model.RunStatusInProgress), time.Now().UTC(), runID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: reopen run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return 0, eris.Wrapf(ErrRunNotFound, "postgres: reopen run %s", runID)
	}

	tag, err = tx.Exec(ctx, `DELETE FROM zone_matches WHERE run_id = $1 AND line > $2`, runID, afterLine)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: trim rows of run %s", runID)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "postgres: reopen run %s", runID)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, source, status, stats, error, created_at, updated_at FROM match_runs WHERE id = $1`,
		runID,
	)
	r, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, source, status, stats, error, created_at, updated_at FROM match_runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, filter.Source)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

// WriteRows bulk-loads rows into zone_matches with COPY.
func (s *PostgresStore) WriteRows(ctx context.Context, runID string, rows []model.MatchedRow) (int64, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = []any{runID, r.Line, r.Lon, r.Lat, r.Timestamp, r.Subtotal, nullable(r.Layer), nullable(r.Code), r.Matched,
			nullableNumeric(r.TaxRate), nullableNumeric(r.Tax), nullableNumeric(r.Total)}
	}
	n, err := db.CopyFrom(ctx, s.pool, "zone_matches", matchColumns, values)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: write rows for run %s", runID)
	}
	return n, nil
}

func (s *PostgresStore) CountRows(ctx context.Context, runID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM zone_matches WHERE run_id = $1`, runID).Scan(&n)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: count rows for run %s", runID)
	}
	return n, nil
}

func scanPostgresRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var statsJSON []byte
	var errText *string

	if err := row.Scan(&r.ID, &r.Source, &status, &statsJSON, &errText, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if errText != nil {
		r.Error = *errText
	}
	if len(statsJSON) > 0 {
		if err := json.Unmarshal(statsJSON, &r.Stats); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal stats")
		}
	}
	return &r, nil
}

// nullable stores empty strings as NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullableNumeric converts a fixed-point decimal string for a NUMERIC
// column. Empty strings are stored as NULL.
func nullableNumeric(s string) pgtype.Numeric {
	var n pgtype.Numeric
	if s != "" {
		_ = n.Scan(s)
	}
	return n
}
