// Package metadata persists the PostgreSQL-shaped type and schema
// information SQLite itself has no notion of: the column-level type
// overrides, enum definitions, and schema version ledger spec.md §3
// calls the "metadata table."
//
// Table shapes are grounded on original_source/src/migration/runner.rs's
// embedded CREATE TABLE statements and original_source/src/metadata/{mod,
// enum_metadata}.rs; the teacher has no equivalent since it infers types
// live from SQLite's own schema instead of recording them.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

// Store wraps a *sql.DB (always the read-write handle — metadata writes
// happen inside the same transactions as DDL) with typed accessors over
// the __pgsqlite_* tables.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ColumnType is one row of __pgsqlite_schema: the PostgreSQL type bound to
// a table column that SQLite's own affinity cannot distinguish on its own
// (e.g. separating BOOLEAN, DATE, and plain INTEGER, all of which are
// stored as SQLite INTEGER).
type ColumnType struct {
	TableName  string
	ColumnName string
	PgType     string
	PgOID      uint32
	Typmod     int32 // -1 if absent
}

const schemaTableDDL = `
CREATE TABLE IF NOT EXISTS __pgsqlite_schema (
	table_name  TEXT NOT NULL,
	column_name TEXT NOT NULL,
	pg_type     TEXT NOT NULL,
	pg_oid      INTEGER NOT NULL,
	typmod      INTEGER NOT NULL DEFAULT -1,
	PRIMARY KEY (table_name, column_name)
)`

const enumTypesTableDDL = `
CREATE TABLE IF NOT EXISTS __pgsqlite_enum_types (
	type_oid   INTEGER PRIMARY KEY,
	type_name  TEXT NOT NULL UNIQUE,
	namespace  TEXT NOT NULL DEFAULT 'public'
)`

const enumValuesTableDDL = `
CREATE TABLE IF NOT EXISTS __pgsqlite_enum_values (
	type_oid   INTEGER NOT NULL REFERENCES __pgsqlite_enum_types(type_oid),
	label      TEXT NOT NULL,
	sort_order REAL NOT NULL,
	PRIMARY KEY (type_oid, label)
)`

const enumUsageTableDDL = `
CREATE TABLE IF NOT EXISTS __pgsqlite_enum_usage (
	table_name  TEXT NOT NULL,
	column_name TEXT NOT NULL,
	type_oid    INTEGER NOT NULL,
	PRIMARY KEY (table_name, column_name)
)`

const metadataTableDDL = `
CREATE TABLE IF NOT EXISTS __pgsqlite_metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

// DDLStatements is the ordered set of CREATE TABLE statements for the
// tables this package reads and writes, exported so callers (tests among
// them) can create them directly. pkg/migration does not use it: its
// version-1 migration carries its own copy of the first four statements,
// and its runner creates __pgsqlite_metadata from its own bootstrap DDL.
var DDLStatements = []string{
	schemaTableDDL,
	enumTypesTableDDL,
	enumValuesTableDDL,
	enumUsageTableDDL,
	metadataTableDDL,
}

// HasLegacySchema reports whether __pgsqlite_schema exists but
// __pgsqlite_metadata does not — the signal original_source/src/migration
// /runner.rs uses to treat a pre-migration database as implicitly at
// schema version 1 rather than failing to open it.
func HasLegacySchema(ctx context.Context, db *sql.DB) (bool, error) {
	hasSchema, err := tableExists(ctx, db, "__pgsqlite_schema")
	if err != nil {
		return false, err
	}
	if !hasSchema {
		return false, nil
	}
	hasMetadata, err := tableExists(ctx, db, "__pgsqlite_metadata")
	if err != nil {
		return false, err
	}
	return !hasMetadata, nil
}

func tableExists(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("pgsqlite: checking for table %s: %w", name, err)
	}
	return n > 0, nil
}

// PutColumnType records (or replaces) the PostgreSQL type bound to a
// column. No translator pass calls it; CREATE TABLE / ALTER TABLE
// statements run through the gateway do not record column types on their
// own.
func (s *Store) PutColumnType(ctx context.Context, ct ColumnType) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO __pgsqlite_schema (table_name, column_name, pg_type, pg_oid, typmod)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (table_name, column_name) DO UPDATE SET
			pg_type = excluded.pg_type, pg_oid = excluded.pg_oid, typmod = excluded.typmod
	`, ct.TableName, ct.ColumnName, ct.PgType, ct.PgOID, ct.Typmod)
	if err != nil {
		return fmt.Errorf("pgsqlite: recording column type for %s.%s: %w", ct.TableName, ct.ColumnName, err)
	}
	return nil
}

// ColumnType looks up the recorded PostgreSQL type for a column, if any
// override was ever recorded for it. Callers fall back to SQLite's own
// declared affinity when ok is false.
func (s *Store) ColumnType(ctx context.Context, table, column string) (ColumnType, bool, error) {
	var ct ColumnType
	err := s.db.QueryRowContext(ctx, `
		SELECT table_name, column_name, pg_type, pg_oid, typmod
		FROM __pgsqlite_schema WHERE table_name = ? AND column_name = ?
	`, table, column).Scan(&ct.TableName, &ct.ColumnName, &ct.PgType, &ct.PgOID, &ct.Typmod)
	if err == sql.ErrNoRows {
		return ColumnType{}, false, nil
	}
	if err != nil {
		return ColumnType{}, false, fmt.Errorf("pgsqlite: looking up column type for %s.%s: %w", table, column, err)
	}
	return ct, true, nil
}

// ColumnTypesForTable returns every recorded override for a table, used by
// pkg/pgwire when choosing RowDescription OIDs, by the translator's decimal
// and insert-value passes, and by DetectDrift.
func (s *Store) ColumnTypesForTable(ctx context.Context, table string) ([]ColumnType, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name, pg_type, pg_oid, typmod
		FROM __pgsqlite_schema WHERE table_name = ?
	`, table)
	if err != nil {
		return nil, fmt.Errorf("pgsqlite: listing column types for %s: %w", table, err)
	}
	defer rows.Close()

	var out []ColumnType
	for rows.Next() {
		var ct ColumnType
		if err := rows.Scan(&ct.TableName, &ct.ColumnName, &ct.PgType, &ct.PgOID, &ct.Typmod); err != nil {
			return nil, err
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

// SetSetting and GetSetting back the __pgsqlite_metadata key/value table,
// used for the schema version marker and other small scalars the
// migration runner and catalog emulation need to persist.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO __pgsqlite_metadata (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM __pgsqlite_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
