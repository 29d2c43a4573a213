// Package catalog registers the SQLite driver this gateway uses: an
// embedded pg_catalog schema of read-only virtual tables, plus the
// Go-implemented SQL functions the Translator Pipeline's passes rewrite
// queries to call (datetime, regex, and decimal arithmetic) and the small
// catalog-compatibility shims ORMs probe on connect.
//
// Grounded on the teacher's pkg/catalog/catalog.go ConnectHook-based
// registration pattern; the former pkg/sqlite package duplicated this
// same table under a second driver name and has been folded in here.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pgsqlite-go/pgsqlite/pkg/types"
)

// DriverName is the database/sql driver name this gateway registers its
// SQLite connection hooks under.
const DriverName = "pgsqlite-sqlite3"

func init() {
	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := registerScalarFunctions(conn); err != nil {
				return err
			}
			if err := registerDecimalFunctions(conn); err != nil {
				return err
			}
			if err := registerDatetimeFunctions(conn); err != nil {
				return err
			}
			if err := registerRegexFunctions(conn); err != nil {
				return err
			}
			if err := registerModules(conn); err != nil {
				return err
			}
			return attachCatalog(conn)
		},
	})
}

func registerScalarFunctions(conn *sqlite3.SQLiteConn) error {
	fns := map[string]any{
		"current_catalog":        currentCatalogFn,
		"current_schema":         currentSchemaFn,
		"current_user":           currentUserFn,
		"session_user":           sessionUserFn,
		"user":                   userFn,
		"version":                versionFn,
		"show":                   showFn,
		"format_type":            formatTypeFn,
		"pg_total_relation_size": pgTotalRelationSizeFn,
	}
	for name, fn := range fns {
		if err := conn.RegisterFunc(name, fn, true); err != nil {
			return fmt.Errorf("pgsqlite: registering %s(): %w", name, err)
		}
	}
	return nil
}

func registerModules(conn *sqlite3.SQLiteConn) error {
	for _, spec := range allTableSpecs {
		moduleName := spec.Name + "_module"
		if err := conn.CreateModule(moduleName, &staticModule{spec: spec}); err != nil {
			return fmt.Errorf("pgsqlite: registering %s: %w", moduleName, err)
		}
	}
	if err := conn.CreateModule("pg_database_module", &PGDatabaseModule{}); err != nil {
		return fmt.Errorf("pgsqlite: registering pg_database_module: %w", err)
	}
	return nil
}

// attachCatalog creates the in-memory pg_catalog schema and declares every
// virtual table against it. Idempotent: SQLite reports "already in use"
// on a second ATTACH of the same schema name on a connection, which is
// treated as success rather than a fatal error.
func attachCatalog(conn *sqlite3.SQLiteConn) error {
	if _, err := conn.Exec(`ATTACH ':memory:' AS pg_catalog`, nil); err != nil {
		if strings.Contains(err.Error(), "already in use") {
			return nil
		}
		return fmt.Errorf("pgsqlite: attaching pg_catalog: %w", err)
	}

	if _, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS pg_catalog.pg_database USING pg_database_module
		(oid, datname, datdba, encoding, datcollate, datctype, datistemplate, datallowconn,
		 datconnlimit, datlastsysoid, datfrozenxid, datminmxid, dattablespace, datacl)`, nil); err != nil {
		return fmt.Errorf("pgsqlite: creating pg_database: %w", err)
	}

	for _, spec := range allTableSpecs {
		cols := strings.Join(spec.Columns, ", ")
		ddl := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS pg_catalog.%s USING %s_module (%s)`,
			spec.Name, spec.Name, cols)
		if _, err := conn.Exec(ddl, nil); err != nil {
			return fmt.Errorf("pgsqlite: creating %s: %w", spec.Name, err)
		}
	}
	return nil
}

func currentCatalogFn() string { return "public" }
func currentSchemaFn() string  { return "public" }
func currentUserFn() string    { return "pgsqlite" }
func sessionUserFn() string    { return "pgsqlite" }
func userFn() string           { return "pgsqlite" }
func versionFn() string        { return "PostgreSQL 14.9 (pgsqlite)" }

// formatTypeFn renders an OID/typmod pair the way PostgreSQL's
// format_type() builtin does, consulting the Type Registry for the
// canonical name; ORMs use this heavily when introspecting a schema.
func formatTypeFn(typeOID, typmod int64) string {
	d, ok := types.ByOID(uint32(typeOID))
	if !ok {
		return "unknown"
	}
	if !d.HasTypmod || typmod < 0 {
		return d.Name
	}
	switch d.Name {
	case "varchar", "bpchar":
		return fmt.Sprintf("%s(%d)", d.Name, typmod-4)
	case "numeric":
		precision := (typmod - 4) >> 16
		scale := (typmod - 4) & 0xffff
		return fmt.Sprintf("numeric(%d,%d)", precision, scale)
	}
	return d.Name
}

func showFn(name string) string { return "" }

// pgTotalRelationSizeFn returns the on-disk size of a database file under
// the configured data directory, matching the teacher's catalog-compat
// shim; a coarse approximation since a true per-table byte count would
// require walking SQLite's own page allocator.
func pgTotalRelationSizeFn(name string) int64 {
	finfo, err := os.Stat(filepath.Join(os.Getenv("PGSQLITE_DATA_DIR"), name+".db"))
	if err != nil {
		return -1
	}
	return finfo.Size()
}

// DatabaseTypeConvSqlite maps a SQLite column type-name string to the
// go-sqlite3 driver's declared-type constants. Nothing in this module
// calls it; the executor scans every column into an untyped value.
func DatabaseTypeConvSqlite(t string) int {
	switch {
	case strings.Contains(t, "INT"):
		return sqlite3.SQLITE_INTEGER
	case t == "CLOB" || t == "TEXT" || strings.Contains(t, "CHAR"):
		return sqlite3.SQLITE_TEXT
	case t == "BLOB":
		return sqlite3.SQLITE_BLOB
	case t == "REAL" || t == "FLOAT" || strings.Contains(t, "DOUBLE"):
		return sqlite3.SQLITE_REAL
	case t == "DATE" || t == "DATETIME" || t == "TIMESTAMP":
		return sqlite3.SQLITE_TIME
	case t == "NUMERIC" || strings.Contains(t, "DECIMAL"):
		return sqlite3.SQLITE_NUMERIC
	case t == "BOOLEAN":
		return sqlite3.SQLITE_BOOL
	}
	return sqlite3.SQLITE_NULL
}
