package translator

import (
	"context"
	"regexp"
	"strings"
)

var (
	insertPattern = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+"?([A-Za-z_]\w*)"?\s*\(([^)]*)\)\s*VALUES\s*(.+?)(\s*(?:ON\s+CONFLICT|RETURNING)\b.*)?$`)
	valuesTuple   = regexp.MustCompile(`\(([^()]*)\)`)
	arrayBraces   = regexp.MustCompile(`'\{([^{}]*)\}'`)
	arrayCtor     = regexp.MustCompile(`(?i)ARRAY\s*\[([^\[\]]*)\]`)

	// sqlalchemyBatch matches the `SELECT $1::type, $2::type, ... FROM
	// (VALUES (...), (...)) AS alias(col, ...)` shape SQLAlchemy's
	// executemany batching emits, which SQLite's VALUES-as-FROM-source
	// syntax does not accept in this form.
	sqlalchemyBatch = regexp.MustCompile(`(?is)^\s*SELECT\s+(.+?)\s+FROM\s*\(\s*VALUES\s+(.+?)\)\s*(?:AS\s+)?"?\w+"?\s*\(([^)]*)\)\s*$`)
)

// InsertValuePass implements spec.md §4.2 pass 6. It runs after the
// datetime/decimal/enum passes have already rewritten any bare
// `expr::type` casts inside a VALUES list (the cast pass applies to
// INSERT statements the same as any other), and handles the three
// things that pass can't: locating which *positional* VALUES column is
// a datetime type so an un-cast literal still converts correctly,
// turning PostgreSQL array literal syntax into SQLite's JSON text
// representation, and rewriting the SQLAlchemy multi-row VALUES-as-
// subquery batch-insert idiom into a UNION ALL chain SQLite accepts.
type InsertValuePass struct{}

func (InsertValuePass) Name() string { return "insert_value" }

func (p InsertValuePass) Apply(tc *Context, sql string) (string, error) {
	sql = p.rewriteArrayLiterals(sql)

	if m := sqlalchemyBatch.FindStringSubmatch(sql); m != nil {
		if rewritten, ok := p.rewriteSQLAlchemyBatch(m); ok {
			return rewritten, nil
		}
	}

	if m := insertPattern.FindStringSubmatch(sql); m != nil {
		if rewritten, ok := p.rewriteInsertValues(tc, m); ok {
			return rewritten, nil
		}
	}

	return sql, nil
}

// rewriteArrayLiterals converts `'{a,b,c}'` and `ARRAY[a,b,c]` into JSON
// array text via SQLite's json1 extension, which mattn/go-sqlite3
// compiles in by default.
func (InsertValuePass) rewriteArrayLiterals(sql string) string {
	sql = arrayCtor.ReplaceAllStringFunc(sql, func(m string) string {
		sub := arrayCtor.FindStringSubmatch(m)
		elems := splitTopLevel(sub[1])
		return "json_array(" + strings.Join(elems, ", ") + ")"
	})
	sql = arrayBraces.ReplaceAllStringFunc(sql, func(m string) string {
		sub := arrayBraces.FindStringSubmatch(m)
		elems := splitTopLevel(sub[1])
		quoted := make([]string, len(elems))
		for i, e := range elems {
			e = strings.Trim(strings.TrimSpace(e), `"`)
			quoted[i] = "'" + strings.ReplaceAll(e, "'", "''") + "'"
		}
		return "json_array(" + strings.Join(quoted, ", ") + ")"
	})
	return sql
}

// rewriteInsertValues wraps each VALUES-tuple element targeting a
// datetime column in the matching conversion call, when that element is
// still a bare text literal (one the cast pass had no `::type` to act
// on — PostgreSQL infers the column's type for an un-annotated literal
// from context the text alone doesn't carry).
func (p InsertValuePass) rewriteInsertValues(tc *Context, m []string) (string, bool) {
	table, colList, tuples, tail := m[1], m[2], m[3], m[4]
	if tc.Store == nil {
		return "", false
	}
	ctx := tc.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	cols := splitTopLevel(colList)
	for i := range cols {
		cols[i] = strings.Trim(strings.TrimSpace(cols[i]), `"`)
	}
	colTypes, err := tc.Store.ColumnTypesForTable(ctx, table)
	if err != nil || len(colTypes) == 0 {
		return "", false
	}
	byName := map[string]string{}
	for _, ct := range colTypes {
		byName[ct.ColumnName] = strings.ToLower(ct.PgType)
	}

	changed := false
	rewritten := valuesTuple.ReplaceAllStringFunc(tuples, func(t string) string {
		inner := valuesTuple.FindStringSubmatch(t)[1]
		vals := splitTopLevel(inner)
		if len(vals) != len(cols) {
			return t
		}
		for i, v := range vals {
			v = strings.TrimSpace(v)
			if !strings.HasPrefix(v, "'") {
				continue
			}
			fn, ok := datetimeCastTargets[byName[cols[i]]]
			if !ok {
				continue
			}
			vals[i] = fn + "(" + v + ")"
			changed = true
		}
		return "(" + strings.Join(vals, ", ") + ")"
	})
	if !changed {
		return "", false
	}
	return "INSERT INTO " + table + " (" + colList + ") VALUES " + rewritten + tail, true
}

// rewriteSQLAlchemyBatch turns `SELECT $1::t1, $2::t2 FROM (VALUES
// ($1,$2), ($3,$4)) AS x(a,b)` into `SELECT $1, $2 UNION ALL SELECT $3,
// $4`, dropping the casts (the parameters already arrive in their bound
// Go types; SQLite needs no type annotation on a bind placeholder) and
// the VALUES-as-subquery alias SQLite's grammar doesn't accept there.
func (InsertValuePass) rewriteSQLAlchemyBatch(m []string) (string, bool) {
	selectList := splitTopLevel(m[1])
	width := len(selectList)
	if width == 0 {
		return "", false
	}

	tuples := valuesTuple.FindAllStringSubmatch(m[2], -1)
	if len(tuples) == 0 {
		return "", false
	}

	selects := make([]string, 0, len(tuples))
	for _, tup := range tuples {
		vals := splitTopLevel(tup[1])
		if len(vals) != width {
			return "", false
		}
		for i := range vals {
			vals[i] = strings.TrimSpace(vals[i])
		}
		selects = append(selects, "SELECT "+strings.Join(vals, ", "))
	}
	return strings.Join(selects, " UNION ALL "), true
}

// splitTopLevel splits a comma-separated list on commas that are not
// nested inside parentheses or a quoted string literal.
func splitTopLevel(s string) []string {
	var out []string
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		case ',':
			if !inQuote && depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, s[start:])
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	if len(out) == 1 && out[0] == "" {
		return nil
	}
	return out
}
