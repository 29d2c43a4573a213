package catalog

import (
	"database/sql/driver"
	"io"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// queryRaw runs a SQL statement directly against the raw SQLite
// connection handed to a ConnectHook, without going through database/sql
// (there is no *sql.DB wrapping this exact connection available inside
// the hook). Used by the pg_type/pg_class/pg_enum virtual tables to read
// the live schema and __pgsqlite_enum_* tables.
func queryRaw(conn *sqlite3.SQLiteConn, query string, args ...driver.Value) ([][]any, error) {
	stmt, err := conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	rows, err := stmt.(driver.Stmt).Query(args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := rows.Columns()
	var out [][]any
	for {
		dest := make([]driver.Value, len(cols))
		if err := rows.Next(dest); err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		row := make([]any, len(dest))
		for i, v := range dest {
			row[i] = v
		}
		out = append(out, row)
	}
	return out, nil
}

// tableExistsRaw reports whether a SQLite table with the given name
// exists, read straight off sqlite_master via the raw connection.
func tableExistsRaw(conn *sqlite3.SQLiteConn, name string) bool {
	rows, err := queryRaw(conn, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return false
	}
	return len(rows) > 0
}
