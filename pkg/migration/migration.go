// Package migration applies the gateway's own bootstrap schema
// (__pgsqlite_metadata, __pgsqlite_migrations, __pgsqlite_migration_locks,
// and the tables pkg/metadata defines) to a SQLite database file, tracking
// which versions have been applied so the schema can evolve across
// releases without the operator running manual SQL.
//
// Grounded directly on original_source/src/migration/runner.rs, translated
// from rusqlite's Connection/params! idiom into database/sql.
package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/go-logr/logr"
)

// Action is what a migration does to the database. Exactly one field
// should be set; SQL is overwhelmingly the common case.
type Action struct {
	SQL      string
	SQLBatch []string
	Func     func(ctx context.Context, tx *sql.Tx) error
}

// Migration is one versioned schema change.
type Migration struct {
	Version      uint32
	Name         string
	Description  string
	Dependencies []uint32
	Up           Action
}

// Checksum is a stable fingerprint of a migration's SQL, used to detect a
// migration file being edited after it was already applied to a database
// (original_source's equivalent check compares against a stored checksum
// string and refuses to proceed on mismatch).
func (m Migration) Checksum() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d:%s:%s", m.Version, m.Name, m.Up.SQL)
	for _, s := range m.Up.SQLBatch {
		fmt.Fprint(h, s)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Registry is the ordered, built-in migration list for this gateway.
// Populated in migrations.go.
var Registry []Migration

// MaxVersion returns the highest version number in Registry, or 0 if the
// registry is empty.
func MaxVersion() uint32 {
	var max uint32
	for _, m := range Registry {
		if m.Version > max {
			max = m.Version
		}
	}
	return max
}

// Logger is an alias of logr.Logger, so callers can pass logr.Discard()
// in tests.
type Logger = logr.Logger
