package translator

import (
	"context"
	"regexp"
	"strings"
)

// castPattern matches `expr::type`, capturing the operand to its left
// (the same restricted operand shape the regex pass uses: a literal, a
// bind parameter, or a dotted identifier/function call — not a full
// expression grammar) so the rewrite can wrap it in a conversion call
// rather than only strip the `::type` suffix. Grounded on the teacher's
// castRegex (pkg/parser/rewrite.go), which only ever stripped
// `::regclass`; this generalizes it to every cast target spec.md §4.2
// pass 1 names.
var castPattern = regexp.MustCompile(operand + `::\s*("?[A-Za-z_][A-Za-z0-9_]*"?)(?:\s*\([^()]*\))?`)

// datetimeCastTargets map a PostgreSQL cast target type to the SQLite
// scalar function pkg/catalog/datetime_functions.go registers to convert
// a PostgreSQL text literal into the integer representation SQLite
// stores that type as.
var datetimeCastTargets = map[string]string{
	"timestamp":   "pgsqlite_to_timestamp",
	"timestamptz": "pgsqlite_to_timestamp",
	"date":        "pgsqlite_to_date",
	"time":        "pgsqlite_to_time",
	"timetz":      "pgsqlite_to_time",
}

// textPassthroughTargets are cast targets whose value is already stored
// as TEXT in SQLite, so the cast can be dropped entirely rather than
// wrapped in CAST(... AS TEXT).
var textPassthroughTargets = map[string]bool{
	"text": true, "varchar": true, "char": true, "bpchar": true,
}

// CastPass rewrites `expr::type`: datetime target types are mapped to
// calls into datetime conversion functions registered with SQLite;
// text-like targets (text, varchar, char, bpchar) drop the cast whatever
// the inner value's type; a target naming a registered ENUM type drops
// the cast without checking the literal against the enum's labels; and
// unknown types are dropped so the bare expression passes through.
type CastPass struct{}

func (CastPass) Name() string { return "cast" }

func (p CastPass) Apply(tc *Context, sql string) (string, error) {
	return castPattern.ReplaceAllStringFunc(sql, func(m string) string {
		sub := castPattern.FindStringSubmatch(m)
		value := sub[1]
		target := strings.ToLower(strings.Trim(sub[2], `"`))

		if fn, ok := datetimeCastTargets[target]; ok {
			return fn + "(" + value + ")"
		}
		if textPassthroughTargets[target] {
			return value
		}
		if found, err := enumTypeExists(tc, target); err == nil && found {
			// ENUM target: pass the bare text value through unchanged;
			// neither this pass nor the enum pass checks it against the
			// enum's labels.
			return value
		}
		// Unknown type: drop the cast, pass the bare expression through.
		return value
	}), nil
}

func enumTypeExists(tc *Context, name string) (bool, error) {
	if tc.Store == nil {
		return false, nil
	}
	ctx := tc.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if tc.Enums != nil {
		_, found, err := tc.Enums.EnumTypeByName(ctx, tc.Store, name)
		return found, err
	}
	_, found, err := tc.Store.EnumTypeByName(ctx, name)
	return found, err
}
