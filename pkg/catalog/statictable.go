package catalog

import (
	"fmt"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// rowSource produces the rows backing a read-only virtual table each time
// it is queried. Implementations re-derive rows from either a fixed slice
// (pg_namespace, pg_description, pg_settings, pg_range) or the live
// connection (pg_type, pg_class, pg_enum), so the table always reflects
// current metadata without a cache-invalidation path.
type rowSource func(conn *sqlite3.SQLiteConn) ([][]any, error)

// tableSpec describes one emulated pg_catalog table: its column list (in
// PostgreSQL's own order, so SELECT * matches real psql output) and the
// function that produces its rows.
type tableSpec struct {
	Name    string
	Columns []string
	Rows    rowSource
}

// staticModule is a generic sqlite3.Module backing every read-only,
// pg_catalog-shaped virtual table in this package. The teacher hand-wrote
// one bespoke Module/VTab/Cursor triple per table (PGDatabaseModule); this
// generalizes that same shape so the catalog's larger SPEC_FULL surface
// (pg_type, pg_class, pg_namespace, pg_description, pg_settings,
// pg_range, pg_enum) doesn't repeat it seven times over.
type staticModule struct {
	spec tableSpec
	conn *sqlite3.SQLiteConn
}

func (m *staticModule) Create(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	cols := make([]string, len(m.spec.Columns))
	for i, name := range m.spec.Columns {
		cols[i] = name
	}
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", args[0], strings.Join(cols, ", "))
	if err := c.DeclareVTab(ddl); err != nil {
		return nil, err
	}
	return &staticVTab{spec: m.spec, conn: c}, nil
}

func (m *staticModule) Connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.Create(c, args)
}

func (m *staticModule) DestroyModule() {}

type staticVTab struct {
	spec tableSpec
	conn *sqlite3.SQLiteConn
}

func (t *staticVTab) Open() (sqlite3.VTabCursor, error) {
	rows, err := t.spec.Rows(t.conn)
	if err != nil {
		return nil, fmt.Errorf("pgsqlite: loading rows for %s: %w", t.spec.Name, err)
	}
	return &staticCursor{rows: rows}, nil
}

func (t *staticVTab) BestIndex(cst []sqlite3.InfoConstraint, ob []sqlite3.InfoOrderBy) (*sqlite3.IndexResult, error) {
	return &sqlite3.IndexResult{Used: make([]bool, len(cst))}, nil
}

func (t *staticVTab) Disconnect() error { return nil }
func (t *staticVTab) Destroy() error    { return nil }

type staticCursor struct {
	rows  [][]any
	index int
}

func (c *staticCursor) Column(sctx *sqlite3.SQLiteContext, col int) error {
	if c.index >= len(c.rows) {
		sctx.ResultNull()
		return nil
	}
	row := c.rows[c.index]
	if col >= len(row) {
		sctx.ResultNull()
		return nil
	}
	switch v := row[col].(type) {
	case nil:
		sctx.ResultNull()
	case string:
		sctx.ResultText(v)
	case int:
		sctx.ResultInt(v)
	case int64:
		sctx.ResultInt64(v)
	case bool:
		if v {
			sctx.ResultInt(1)
		} else {
			sctx.ResultInt(0)
		}
	case float64:
		sctx.ResultDouble(v)
	default:
		sctx.ResultText(fmt.Sprintf("%v", v))
	}
	return nil
}

func (c *staticCursor) Filter(idxNum int, idxStr string, vals []interface{}) error {
	c.index = 0
	return nil
}

func (c *staticCursor) Next() error {
	c.index++
	return nil
}

func (c *staticCursor) EOF() bool {
	return c.index >= len(c.rows)
}

func (c *staticCursor) Rowid() (int64, error) {
	return int64(c.index), nil
}

func (c *staticCursor) Close() error {
	return nil
}

func staticRows(rows [][]any) rowSource {
	return func(*sqlite3.SQLiteConn) ([][]any, error) {
		return rows, nil
	}
}
