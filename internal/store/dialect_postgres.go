package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) ForUpdate() string { return " FOR UPDATE" }

func (d *PostgresDialect) TablesSQL(schema Schema) string {
	if schema == ServerSchema {
		return pgServerTablesSQL
	}
	return pgClientTablesSQL
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	// With pgx/stdlib, the underlying error message includes the PG code
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- PostgreSQL DDL ---

const pgClientTablesSQL = `
CREATE TABLE IF NOT EXISTS _pending_submissions (
    id             TEXT PRIMARY KEY,
    form_id        TEXT NOT NULL,
    form_title     TEXT NOT NULL DEFAULT '',
    values_json    TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'PENDING',
    error_message  TEXT,
    attempt_count  INTEGER NOT NULL DEFAULT 0,
    created_at     BIGINT NOT NULL,
    updated_at     BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pending_submissions_status ON _pending_submissions (status, created_at);
CREATE INDEX IF NOT EXISTS idx_pending_submissions_form ON _pending_submissions (form_id);

CREATE TABLE IF NOT EXISTS _drafts (
    form_id      TEXT PRIMARY KEY,
    page_index   INTEGER NOT NULL DEFAULT 0,
    values_json  TEXT NOT NULL,
    updated_at   BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS _form_cache (
    cache_key   TEXT PRIMARY KEY,
    payload     TEXT NOT NULL,
    fetched_at  BIGINT NOT NULL
);
`

const pgServerTablesSQL = `
CREATE TABLE IF NOT EXISTS _submissions (
    id               TEXT PRIMARY KEY,
    form_id          TEXT NOT NULL,
    values_json      JSONB NOT NULL,
    idempotency_key  TEXT,
    created_at       BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_form ON _submissions (form_id, created_at);

CREATE TABLE IF NOT EXISTS _idempotency_keys (
    idem_key     TEXT PRIMARY KEY,
    status       INTEGER NOT NULL,
    body         TEXT NOT NULL,
    created_at   BIGINT NOT NULL,
    expires_at   BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_idempotency_keys_expires ON _idempotency_keys (expires_at);
`
