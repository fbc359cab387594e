package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hupe1980/metastore/backend"
	"github.com/hupe1980/metastore/internal/conv"
	"github.com/hupe1980/metastore/internal/manifest"
	"github.com/hupe1980/metastore/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS indexes (
	index_id            TEXT PRIMARY KEY,
	version             INTEGER NOT NULL,
	index_metadata_json TEXT NOT NULL,
	create_timestamp    TEXT NOT NULL,
	update_timestamp    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS splits (
	index_id            TEXT NOT NULL,
	split_id            TEXT NOT NULL,
	position            INTEGER NOT NULL,
	split_state         TEXT NOT NULL,
	time_range_start    INTEGER,
	time_range_end      INTEGER,
	update_timestamp    TEXT NOT NULL,
	split_metadata_json TEXT NOT NULL,
	PRIMARY KEY (index_id, split_id)
);

CREATE INDEX IF NOT EXISTS splits_state_idx ON splits (index_id, split_state);
`

// Backend stores indexes and splits as rows in SQLite. The token of a
// manifest is its version column.
type Backend struct {
	db *sql.DB
}

// Open opens or creates the database at path. Use ":memory:" for a private
// in-memory database.
func Open(ctx context.Context, path string) (*Backend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer connection; SQLite serializes writers anyway and an
	// in-memory database is private to its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Backend{db: db}, nil
}

// ReadManifest implements backend.Backend. Index and split rows are read in
// one transaction, so the result reflects a single version.
func (b *Backend) ReadManifest(ctx context.Context, indexID string) (*manifest.Manifest, backend.Token, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, backend.NoToken, translateError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		rawVersion int64
		metaJSON   string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT version, index_metadata_json FROM indexes WHERE index_id = ?`, indexID,
	).Scan(&rawVersion, &metaJSON)
	if err != nil {
		return nil, backend.NoToken, translateError(err)
	}
	version, err := conv.Int64ToUint64(rawVersion)
	if err != nil {
		return nil, backend.NoToken, fmt.Errorf("%w: index %s: %w", manifest.ErrCorrupt, indexID, err)
	}

	m := &manifest.Manifest{}
	if err := json.Unmarshal([]byte(metaJSON), &m.Index); err != nil {
		return nil, backend.NoToken, fmt.Errorf("%w: index %s: %w", manifest.ErrCorrupt, indexID, err)
	}
	m.Index.Version = version

	rows, err := tx.QueryContext(ctx,
		`SELECT split_metadata_json FROM splits WHERE index_id = ? ORDER BY position`, indexID)
	if err != nil {
		return nil, backend.NoToken, translateError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var splitJSON string
		if err := rows.Scan(&splitJSON); err != nil {
			return nil, backend.NoToken, translateError(err)
		}
		s := &model.SplitMetadata{}
		if err := json.Unmarshal([]byte(splitJSON), s); err != nil {
			return nil, backend.NoToken, fmt.Errorf("%w: index %s: %w", manifest.ErrCorrupt, indexID, err)
		}
		m.Splits = append(m.Splits, s)
	}
	if err := rows.Err(); err != nil {
		return nil, backend.NoToken, translateError(err)
	}
	return m, formatToken(version), nil
}

// WriteManifest implements backend.Backend. The version check, the index row
// update and the replacement of the split rows commit in one transaction.
func (b *Backend) WriteManifest(ctx context.Context, indexID string, m *manifest.Manifest, expected backend.Token) (backend.Token, error) {
	metaJSON, err := json.Marshal(m.Index)
	if err != nil {
		return backend.NoToken, err
	}
	version, err := conv.Uint64ToInt64(m.Version())
	if err != nil {
		return backend.NoToken, err
	}
	created := formatTime(m.Index.CreatedAt)
	updated := formatTime(m.Index.UpdatedAt)

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return backend.NoToken, translateError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if expected == backend.NoToken {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO indexes (index_id, version, index_metadata_json, create_timestamp, update_timestamp)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (index_id) DO NOTHING`,
			indexID, version, string(metaJSON), created, updated)
	} else {
		expectedVersion, perr := parseToken(expected)
		if perr != nil {
			return backend.NoToken, perr
		}
		if version <= expectedVersion {
			return backend.NoToken, fmt.Errorf("manifest version %d does not advance past %d", version, expectedVersion)
		}
		res, err = tx.ExecContext(ctx, `
			UPDATE indexes
			SET version = ?, index_metadata_json = ?, update_timestamp = ?
			WHERE index_id = ? AND version = ?`,
			version, string(metaJSON), updated, indexID, expectedVersion)
	}
	if err != nil {
		return backend.NoToken, translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return backend.NoToken, translateError(err)
	}
	if n != 1 {
		return backend.NoToken, backend.ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM splits WHERE index_id = ?`, indexID); err != nil {
		return backend.NoToken, translateError(err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO splits (index_id, split_id, position, split_state, time_range_start, time_range_end, update_timestamp, split_metadata_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return backend.NoToken, translateError(err)
	}
	defer stmt.Close()

	for i, s := range m.Splits {
		splitJSON, err := json.Marshal(s)
		if err != nil {
			return backend.NoToken, err
		}
		var start, end sql.NullInt64
		if s.TimeRange != nil {
			start = sql.NullInt64{Int64: s.TimeRange.Start, Valid: true}
			end = sql.NullInt64{Int64: s.TimeRange.End, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, indexID, s.SplitID, i, string(s.State), start, end, formatTime(s.UpdatedAt), string(splitJSON)); err != nil {
			return backend.NoToken, translateError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return backend.NoToken, translateError(err)
	}
	return formatToken(m.Version()), nil
}

// DeleteManifest implements backend.Backend.
func (b *Backend) DeleteManifest(ctx context.Context, indexID string, expected backend.Token) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return translateError(err)
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	if expected == backend.NoToken {
		res, err = tx.ExecContext(ctx, `DELETE FROM indexes WHERE index_id = ?`, indexID)
	} else {
		expectedVersion, perr := parseToken(expected)
		if perr != nil {
			return perr
		}
		res, err = tx.ExecContext(ctx, `DELETE FROM indexes WHERE index_id = ? AND version = ?`, indexID, expectedVersion)
	}
	if err != nil {
		return translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return translateError(err)
	}
	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM indexes WHERE index_id = ?`, indexID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return backend.ErrNotFound
		}
		if err != nil {
			return translateError(err)
		}
		return backend.ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM splits WHERE index_id = ?`, indexID); err != nil {
		return translateError(err)
	}
	return translateError(tx.Commit())
}

// ListIndexes implements backend.Backend.
func (b *Backend) ListIndexes(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT index_id FROM indexes ORDER BY index_id`)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, translateError(err)
		}
		ids = append(ids, id)
	}
	return ids, translateError(rows.Err())
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func formatToken(version uint64) backend.Token {
	return backend.Token(strconv.FormatUint(version, 10))
}

func parseToken(t backend.Token) (int64, error) {
	v, err := strconv.ParseUint(string(t), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid version token %q: %w", t, err)
	}
	return conv.Uint64ToInt64(v)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return backend.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, sql.ErrConnDone):
		return fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_FULL:
			return fmt.Errorf("%w: %w", backend.ErrUnavailable, err)
		}
	}
	return err
}
