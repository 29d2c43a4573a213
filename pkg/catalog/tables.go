package catalog

import (
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pgsqlite-go/pgsqlite/pkg/types"
)

var namespaceRows = staticRows([][]any{
	{int64(11), "pg_catalog", int64(10), nil},
	{int64(2200), "public", int64(10), nil},
})

var namespaceSpec = tableSpec{
	Name:    "pg_namespace",
	Columns: []string{"oid", "nspname", "nspowner", "nspacl"},
	Rows:    namespaceRows,
}

var descriptionSpec = tableSpec{
	Name:    "pg_description",
	Columns: []string{"objoid", "classoid", "objsubid", "description"},
	Rows:    staticRows(nil),
}

var settingsRows = staticRows([][]any{
	{"server_version", "14.9 (pgsqlite)", nil, "Preset Options", "Shows the server version.", nil, "internal", "string", "default", nil, nil, nil, "14.9", "14.9", nil, nil, int64(0)},
	{"server_encoding", "UTF8", nil, "Preset Options", "Sets the server (database) character set encoding.", nil, "internal", "string", "override", nil, nil, nil, "UTF8", "UTF8", nil, nil, int64(0)},
	{"client_encoding", "UTF8", nil, "Client Connection Defaults / Locale and Formatting", "Sets the client's character set encoding.", nil, "session", "string", "session", nil, nil, nil, "UTF8", "UTF8", nil, nil, int64(0)},
	{"standard_conforming_strings", "on", nil, "Version and Platform Compatibility / Previous PostgreSQL Versions", "Causes '...' strings to treat backslashes literally.", nil, "user", "bool", "default", nil, nil, nil, "on", "on", nil, nil, int64(0)},
	{"TimeZone", "UTC", nil, "Client Connection Defaults / Locale and Formatting", "Sets the time zone for displaying and interpreting time stamps.", nil, "user", "string", "default", nil, nil, nil, "UTC", "UTC", nil, nil, int64(0)},
	{"integer_datetimes", "on", nil, "Preset Options", "Datetimes are integer based.", nil, "internal", "bool", "default", nil, nil, nil, "on", "on", nil, nil, int64(0)},
})

var settingsSpec = tableSpec{
	Name: "pg_settings",
	Columns: []string{
		"name", "setting", "unit", "category", "short_desc", "extra_desc", "context", "vartype",
		"source", "min_val", "max_val", "enumvals", "boot_val", "reset_val", "sourcefile", "sourceline", "pending_restart",
	},
	Rows: settingsRows,
}

var rangeSpec = tableSpec{
	Name:    "pg_range",
	Columns: []string{"rngtypid", "rngsubtype", "rngmultitypid", "rngcollation", "rngsubopc", "rngcanonical", "rngsubdiff"},
	Rows:    staticRows(nil),
}

// pg_type combines the Type Registry's built-in scalar types with any
// enum types the translator's enum pass has registered, so ORMs probing
// pg_type on connect see both.
var typeSpec = tableSpec{
	Name: "pg_type",
	Columns: []string{
		"oid", "typname", "typnamespace", "typowner", "typlen", "typbyval", "typtype", "typcategory",
		"typispreferred", "typisdefined", "typdelim", "typrelid", "typelem", "typarray", "typinput",
		"typoutput", "typreceive", "typsend", "typmodin", "typmodout", "typanalyze", "typalign",
		"typstorage", "typnotnull", "typbasetype", "typtypmod", "typndims", "typcollation",
		"typdefaultbin", "typdefault", "typacl",
	},
	Rows: func(conn *sqlite3.SQLiteConn) ([][]any, error) {
		rows := make([][]any, 0, len(types.AllDescriptors())+4)
		for _, d := range types.AllDescriptors() {
			rows = append(rows, builtinTypeRow(d))
		}
		if tableExistsRaw(conn, "__pgsqlite_enum_types") {
			enumRows, err := queryRaw(conn, `SELECT type_oid, type_name FROM __pgsqlite_enum_types`)
			if err != nil {
				return nil, err
			}
			for _, er := range enumRows {
				rows = append(rows, enumTypeRow(er[0], er[1]))
			}
		}
		return rows, nil
	},
}

func builtinTypeRow(d *types.Descriptor) []any {
	return []any{
		int64(d.OID), d.Name, int64(11), int64(10), int64(-1), false, "b", "U",
		true, true, ",", int64(0), int64(0), int64(0), d.Name + "in", d.Name + "out", nil, nil,
		nil, nil, nil, "i", "p", false, int64(0), int64(-1), int64(0), int64(0), nil, nil, nil,
	}
}

func enumTypeRow(oid, name any) []any {
	return []any{
		oid, name, int64(2200), int64(10), int64(4), true, "e", "E",
		false, true, ",", int64(0), int64(0), int64(0), "enum_in", "enum_out", nil, nil,
		nil, nil, nil, "i", "p", false, int64(0), int64(-1), int64(0), int64(0), nil, nil, nil,
	}
}

// pg_class lists user tables read straight from sqlite_master, mirroring
// what a real PostgreSQL catalog reports for \d and information_schema-
// backed tooling; SQLite's own sqlite_* tables and this gateway's
// __pgsqlite_* tables are left out.
var classSpec = tableSpec{
	Name: "pg_class",
	Columns: []string{
		"oid", "relname", "relnamespace", "reltype", "reloftype", "relowner", "relam", "relfilenode",
		"reltablespace", "relpages", "reltuples", "relallvisible", "reltoastrelid", "relhasindex",
		"relisshared", "relpersistence", "relkind", "relnatts", "relchecks", "relhasrules",
		"relhastriggers", "relhassubclass", "relrowsecurity", "relforcerowsecurity", "relispopulated",
		"relreplident", "relispartition", "relrewrite", "relfrozenxid", "relminmxid", "relacl",
		"reloptions", "relpartbound",
	},
	Rows: func(conn *sqlite3.SQLiteConn) ([][]any, error) {
		tables, err := queryRaw(conn, `
			SELECT rowid, name FROM sqlite_master
			WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name NOT LIKE '\_\_pgsqlite\_%' ESCAPE '\'
		`)
		if err != nil {
			return nil, err
		}
		rows := make([][]any, 0, len(tables))
		for _, t := range tables {
			rows = append(rows, []any{
				t[0], t[1], int64(2200), int64(0), nil, int64(10), int64(0), int64(0),
				int64(0), int64(0), float64(0), int64(0), int64(0), false,
				false, "p", "r", int64(0), int64(0), false,
				false, false, false, false, true,
				"d", false, int64(0), int64(0), int64(0), nil,
				nil, nil,
			})
		}
		return rows, nil
	},
}

// pg_enum synthesizes one row per enum label, grounded on
// original_source/src/catalog/pg_enum.rs's column set.
var enumSpec = tableSpec{
	Name:    "pg_enum",
	Columns: []string{"oid", "enumtypid", "enumsortorder", "enumlabel"},
	Rows: func(conn *sqlite3.SQLiteConn) ([][]any, error) {
		if !tableExistsRaw(conn, "__pgsqlite_enum_values") {
			return nil, nil
		}
		return queryRaw(conn, `
			SELECT rowid, type_oid, sort_order, label FROM __pgsqlite_enum_values ORDER BY type_oid, sort_order
		`)
	},
}

var allTableSpecs = []tableSpec{
	namespaceSpec, descriptionSpec, settingsSpec, rangeSpec, typeSpec, classSpec, enumSpec,
}
