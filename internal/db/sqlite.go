package db

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite" // register the sqlite driver
)

// SQLiteTimeLayout is the UTC text layout used for timestamps in SQLite.
// It sorts lexicographically in time order.
const SQLiteTimeLayout = "2006-01-02 15:04:05.000000"

// OpenSQLite opens a SQLite database at path and configures WAL mode.
func OpenSQLite(path string) (*sql.DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single connection keeps ":memory:" databases shared across calls.
	sqlDB.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			_ = sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return sqlDB, nil
}

// sqliteSchema mirrors the Postgres migrations. Timestamps are stored as
// SQLiteTimeLayout text; inserted_at uses the same ordering so the
// visibility triggers compare correctly.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS search_records (
	data_date    TEXT    NOT NULL,
	url          TEXT    NOT NULL,
	query        TEXT    NOT NULL,
	impressions  INTEGER NOT NULL DEFAULT 0,
	clicks       INTEGER NOT NULL DEFAULT 0,
	avg_position REAL    NOT NULL DEFAULT 0,
	run_id       TEXT,
	inserted_at  TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f000', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_search_records_date_query_url
	ON search_records (data_date, query, url);

CREATE TABLE IF NOT EXISTS progress_ledger (
	data_date         TEXT    NOT NULL,
	record_position   INTEGER NOT NULL DEFAULT 0 CHECK (record_position >= 0),
	is_date_completed INTEGER NOT NULL DEFAULT 0,
	updated_at        TEXT    NOT NULL,
	run_id            TEXT,
	inserted_at       TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%f000', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_progress_ledger_date
	ON progress_ledger (data_date, updated_at);

CREATE TRIGGER IF NOT EXISTS progress_ledger_visibility_delete
BEFORE DELETE ON progress_ledger
WHEN OLD.inserted_at > strftime('%Y-%m-%d %H:%M:%f000', 'now', '-30 minutes')
BEGIN
	SELECT RAISE(ABORT, 'DELETE statement over table progress_ledger would affect rows in the streaming buffer, which is not supported');
END;

CREATE TRIGGER IF NOT EXISTS progress_ledger_visibility_update
BEFORE UPDATE ON progress_ledger
WHEN OLD.inserted_at > strftime('%Y-%m-%d %H:%M:%f000', 'now', '-30 minutes')
BEGIN
	SELECT RAISE(ABORT, 'UPDATE statement over table progress_ledger would affect rows in the streaming buffer, which is not supported');
END;
`

// MigrateSQLite creates the SQLite tables and visibility triggers.
func MigrateSQLite(ctx context.Context, sqlDB *sql.DB) error {
	if _, err := sqlDB.ExecContext(ctx, sqliteSchema); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}
