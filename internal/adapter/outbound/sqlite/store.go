// Package sqlite persists policies, assignments, users, and the audit
// trail in a single SQLite database. Uniqueness and cascade rules live
// in the schema, so concurrent writers resolve conflicts in the store
// rather than in service code.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS policies (
	id               TEXT PRIMARY KEY,
	organization_id  TEXT NOT NULL,
	name             TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	default_level    TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL,
	priority         INTEGER NOT NULL,
	version          INTEGER NOT NULL DEFAULT 0,
	is_active        INTEGER NOT NULL,
	rejection_reason TEXT NOT NULL DEFAULT '',
	created_by       TEXT NOT NULL,
	approved_by      TEXT NOT NULL DEFAULT '',
	submitted_at     TIMESTAMP,
	approved_at      TIMESTAMP,
	rejected_at      TIMESTAMP,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL,
	UNIQUE (organization_id, name)
);

CREATE TABLE IF NOT EXISTS rules (
	id               TEXT PRIMARY KEY,
	policy_id        TEXT NOT NULL REFERENCES policies(id) ON DELETE CASCADE,
	resource         TEXT NOT NULL,
	action           TEXT NOT NULL,
	effect           TEXT NOT NULL,
	condition_type   TEXT NOT NULL,
	condition_params TEXT NOT NULL DEFAULT '{}',
	allowed_fields   TEXT NOT NULL DEFAULT '[]',
	denied_fields    TEXT NOT NULL DEFAULT '[]',
	is_active        INTEGER NOT NULL,
	position         INTEGER NOT NULL,
	created_at       TIMESTAMP NOT NULL,
	UNIQUE (policy_id, resource, action)
);

CREATE TABLE IF NOT EXISTS assignments (
	policy_id       TEXT NOT NULL REFERENCES policies(id) ON DELETE CASCADE,
	user_id         TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	reason          TEXT NOT NULL,
	business_case   TEXT NOT NULL DEFAULT '',
	assigned_by     TEXT NOT NULL,
	assigned_at     TIMESTAMP NOT NULL,
	expires_at      TIMESTAMP,
	notified_users  TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (policy_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_assignments_user
	ON assignments (organization_id, user_id);

CREATE TABLE IF NOT EXISTS policy_versions (
	policy_id       TEXT NOT NULL,
	organization_id TEXT NOT NULL,
	version         INTEGER NOT NULL,
	name            TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	default_level   TEXT NOT NULL DEFAULT '',
	priority        INTEGER NOT NULL,
	rules_snapshot  TEXT NOT NULL,
	change_summary  TEXT NOT NULL,
	changed_by      TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (policy_id, version)
);

CREATE TABLE IF NOT EXISTS users (
	id              TEXT PRIMARY KEY,
	organization_id TEXT NOT NULL,
	name            TEXT NOT NULL,
	email           TEXT NOT NULL DEFAULT '',
	department      TEXT NOT NULL DEFAULT '',
	level           TEXT NOT NULL,
	team_lead_id    TEXT NOT NULL DEFAULT '',
	is_active       INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_entries (
	id              TEXT PRIMARY KEY,
	occurred_at     TIMESTAMP NOT NULL,
	organization_id TEXT NOT NULL,
	actor_id        TEXT NOT NULL,
	actor_name      TEXT NOT NULL DEFAULT '',
	actor_level     TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL,
	resource        TEXT NOT NULL,
	resource_id     TEXT NOT NULL DEFAULT '',
	resource_name   TEXT NOT NULL DEFAULT '',
	previous_state  TEXT,
	new_state       TEXT,
	summary         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_org_time
	ON audit_entries (organization_id, occurred_at);
`

// Store is the SQLite-backed persistence layer. One Store serves all
// the engine's store interfaces.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema. Foreign keys and WAL are enabled; busy_timeout covers short
// writer contention.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// marshalJSON encodes v for a TEXT column, treating empty containers as
// their literal empty form.
func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode column: %w", err)
	}
	return string(b), nil
}

// unmarshalJSON decodes a TEXT column into out, tolerating empty and
// NULL-ish values.
func unmarshalJSON(data string, out any) error {
	if data == "" || data == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), out); err != nil {
		return fmt.Errorf("decode column: %w", err)
	}
	return nil
}
