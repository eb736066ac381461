package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

// ForUpdate is empty: a SQLite transaction already holds the single writer.
func (d *SQLiteDialect) ForUpdate() string { return "" }

func (d *SQLiteDialect) TablesSQL(schema Schema) string {
	if schema == ServerSchema {
		return sqliteServerTablesSQL
	}
	return sqliteClientTablesSQL
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- SQLite DDL ---

const sqliteClientTablesSQL = `
CREATE TABLE IF NOT EXISTS _pending_submissions (
    id             TEXT PRIMARY KEY,
    form_id        TEXT NOT NULL,
    form_title     TEXT NOT NULL DEFAULT '',
    values_json    TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'PENDING',
    error_message  TEXT,
    attempt_count  INTEGER NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_submissions_status ON _pending_submissions (status, created_at);
CREATE INDEX IF NOT EXISTS idx_pending_submissions_form ON _pending_submissions (form_id);

CREATE TABLE IF NOT EXISTS _drafts (
    form_id      TEXT PRIMARY KEY,
    page_index   INTEGER NOT NULL DEFAULT 0,
    values_json  TEXT NOT NULL,
    updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS _form_cache (
    cache_key   TEXT PRIMARY KEY,
    payload     TEXT NOT NULL,
    fetched_at  INTEGER NOT NULL
);
`

const sqliteServerTablesSQL = `
CREATE TABLE IF NOT EXISTS _submissions (
    id               TEXT PRIMARY KEY,
    form_id          TEXT NOT NULL,
    values_json      TEXT NOT NULL,
    idempotency_key  TEXT,
    created_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_form ON _submissions (form_id, created_at);

CREATE TABLE IF NOT EXISTS _idempotency_keys (
    idem_key     TEXT PRIMARY KEY,
    status       INTEGER NOT NULL,
    body         TEXT NOT NULL,
    created_at   INTEGER NOT NULL,
    expires_at   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_idempotency_keys_expires ON _idempotency_keys (expires_at);
`
