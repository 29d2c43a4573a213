package migration

import "strings"

func init() {
	Registry = []Migration{
		{
			Version:     1,
			Name:        "initial_schema",
			Description: "Create pgsqlite system tables",
			Up: Action{
				SQL: strings.Join([]string{
					`CREATE TABLE IF NOT EXISTS __pgsqlite_schema (
						table_name  TEXT NOT NULL,
						column_name TEXT NOT NULL,
						pg_type     TEXT NOT NULL,
						pg_oid      INTEGER NOT NULL,
						typmod      INTEGER NOT NULL DEFAULT -1,
						PRIMARY KEY (table_name, column_name)
					)`,
					`CREATE TABLE IF NOT EXISTS __pgsqlite_enum_types (
						type_oid   INTEGER PRIMARY KEY,
						type_name  TEXT NOT NULL UNIQUE,
						namespace  TEXT NOT NULL DEFAULT 'public'
					)`,
					`CREATE TABLE IF NOT EXISTS __pgsqlite_enum_values (
						type_oid   INTEGER NOT NULL REFERENCES __pgsqlite_enum_types(type_oid),
						label      TEXT NOT NULL,
						sort_order REAL NOT NULL,
						PRIMARY KEY (type_oid, label)
					)`,
					`CREATE TABLE IF NOT EXISTS __pgsqlite_enum_usage (
						table_name  TEXT NOT NULL,
						column_name TEXT NOT NULL,
						type_oid    INTEGER NOT NULL,
						PRIMARY KEY (table_name, column_name)
					)`,
				}, ";\n"),
			},
		},
		{
			Version:      2,
			Name:         "result_cache_metrics",
			Description:  "Add a table for per-cache hit/miss counters",
			Dependencies: []uint32{1},
			Up: Action{
				SQL: `CREATE TABLE IF NOT EXISTS __pgsqlite_cache_stats (
					cache_name TEXT PRIMARY KEY,
					hits       INTEGER NOT NULL DEFAULT 0,
					misses     INTEGER NOT NULL DEFAULT 0
				)`,
			},
		},
	}
}
