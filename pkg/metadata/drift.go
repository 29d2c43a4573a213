package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

// DriftKind classifies a single schema-drift finding (spec.md §2's
// Schema-drift Detector: "reports missing, extra, and mismatched
// columns").
type DriftKind int

const (
	// DriftMissing means a column recorded in __pgsqlite_schema no longer
	// exists on the live SQLite table (e.g. an out-of-band ALTER TABLE
	// DROP COLUMN that bypassed the translator).
	DriftMissing DriftKind = iota
	// DriftExtra means a live SQLite column has no recorded pg-type
	// override at all.
	DriftExtra
	// DriftMismatch means the live column's SQLite declared type doesn't
	// match the sqlite-affinity __pgsqlite_schema expects for the
	// recorded pg-type.
	DriftMismatch
)

func (k DriftKind) String() string {
	switch k {
	case DriftMissing:
		return "missing"
	case DriftExtra:
		return "extra"
	case DriftMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// Drift is one finding returned by DetectDrift.
type Drift struct {
	Kind       DriftKind
	TableName  string
	ColumnName string
	// Recorded is what __pgsqlite_schema expects: the SQLite affinity
	// derived from the recorded pg-type for DriftMismatch, the recorded
	// pg-type name itself for DriftMissing, and empty for DriftExtra,
	// since nothing was recorded.
	Recorded string
	// Live is the SQLite-declared type actually found on the table
	// (empty for DriftMissing, since the column is gone).
	Live string
}

// sqliteAffinity maps a recorded PostgreSQL type name to the SQLite
// storage-class keyword the translator's DDL rewrite would have used when
// creating the column, per spec.md §3's type-descriptor affinities. This
// mirrors pkg/types.Registry's OID->affinity table but works from the
// type *name* stored in __pgsqlite_schema rather than from an OID, since
// that's what's persisted.
var sqliteAffinity = map[string]string{
	"int2": "INTEGER", "int4": "INTEGER", "int8": "INTEGER",
	"bool": "INTEGER", "date": "INTEGER", "time": "INTEGER",
	"timestamp": "INTEGER", "timestamptz": "INTEGER",
	"float4": "REAL", "float8": "REAL", "numeric": "TEXT",
	"text": "TEXT", "varchar": "TEXT", "bpchar": "TEXT", "uuid": "TEXT",
	"json": "TEXT", "jsonb": "TEXT", "enum": "TEXT",
	"bytea": "BLOB",
}

// DetectDrift compares every recorded __pgsqlite_schema entry against the
// live SQLite schema (via PRAGMA table_info) for the tables it covers, and
// separately flags live columns on those same tables with no recorded
// override. It implements spec.md §2's Schema-drift Detector.
//
// Detection is scoped to tables that appear in __pgsqlite_schema at least
// once; tables the gateway has never seen a typed DDL statement for carry
// no recorded expectations and are not compared.
func DetectDrift(ctx context.Context, db *sql.DB, store *Store) ([]Drift, error) {
	tables, err := coveredTables(ctx, db)
	if err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, table := range tables {
		recorded, err := store.ColumnTypesForTable(ctx, table)
		if err != nil {
			return nil, err
		}
		recordedByCol := make(map[string]ColumnType, len(recorded))
		for _, ct := range recorded {
			recordedByCol[ct.ColumnName] = ct
		}

		live, err := liveColumns(ctx, db, table)
		if err != nil {
			return nil, fmt.Errorf("pgsqlite: reading live schema for %s: %w", table, err)
		}

		for col, ct := range recordedByCol {
			liveType, ok := live[col]
			if !ok {
				drifts = append(drifts, Drift{Kind: DriftMissing, TableName: table, ColumnName: col, Recorded: ct.PgType})
				continue
			}
			if want, known := sqliteAffinity[ct.PgType]; known && want != liveType {
				drifts = append(drifts, Drift{Kind: DriftMismatch, TableName: table, ColumnName: col, Recorded: want, Live: liveType})
			}
		}
		for col, liveType := range live {
			if _, ok := recordedByCol[col]; !ok {
				drifts = append(drifts, Drift{Kind: DriftExtra, TableName: table, ColumnName: col, Live: liveType})
			}
		}
	}
	return drifts, nil
}

func coveredTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT table_name FROM __pgsqlite_schema ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("pgsqlite: listing drift-covered tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// liveColumns returns column name -> declared SQLite type (uppercased,
// matching what CREATE TABLE statements generated by the translator
// declare) for a table, via PRAGMA table_info. A table that no longer
// exists at all yields an empty map, surfacing every recorded column as
// DriftMissing rather than erroring — a dropped table is a valid (if
// unusual) out-of-band change the detector should still report on.
func liveColumns(ctx context.Context, db *sql.DB, table string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = ctype
	}
	return cols, rows.Err()
}
