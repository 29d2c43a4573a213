package translator

import "regexp"

// operand matches the common right/left-hand shapes this best-effort
// textual pass targets: a quoted string literal, a $N bind parameter, or
// a dotted identifier / simple function call — not a full expression
// grammar, matching the teacher's own text-regex approach to rewriting
// (pkg/parser/rewrite.go never parses an expression tree either).
const operand = `(\$[0-9]+|'(?:[^']|'')*'|[A-Za-z_][\w.]*(?:\([^()]*\))?)`

// Grounded on spec.md §4.2 pass 3. The four operator spellings (and their
// OPERATOR(pg_catalog.~*)-qualified forms) all reduce to calls into the
// registered SQLite functions regexp()/regexpi() that
// pkg/catalog/regex_functions.go installs on every connection. Longer/
// more specific operator patterns are matched before their substrings
// (!~* before !~ before ~*  before ~) so a negated case-insensitive match
// is never mistaken for a plain one.
var (
	collateAttached = regexp.MustCompile(`(?i)\s+COLLATE\s+"?[\w.]+"?(\s*(?:!?~\*?))`)

	opNotMatchCI = regexp.MustCompile(`(?i)` + operand + `\s*(?:OPERATOR\(pg_catalog\.)?!~\*\)?\s*` + operand)
	opNotMatch   = regexp.MustCompile(`(?i)` + operand + `\s*(?:OPERATOR\(pg_catalog\.)?!~\)?\s*` + operand)
	opMatchCI    = regexp.MustCompile(`(?i)` + operand + `\s*(?:OPERATOR\(pg_catalog\.)?~\*\)?\s*` + operand)
	opMatchPlain = regexp.MustCompile(`(?i)` + operand + `\s*(?:OPERATOR\(pg_catalog\.)?~\)?\s*` + operand)
)

// RegexPass rewrites `lhs ~ rhs` into `regexp(rhs, lhs)` and its
// case-insensitive/negated variants, stripping any COLLATE clause
// attached to the left-hand (text) operand first.
type RegexPass struct{}

func (RegexPass) Name() string { return "regex" }

func (RegexPass) Apply(tc *Context, sql string) (string, error) {
	sql = collateAttached.ReplaceAllString(sql, "$1")

	sql = opNotMatchCI.ReplaceAllString(sql, "NOT regexpi($2, $1)")
	sql = opNotMatch.ReplaceAllString(sql, "NOT regexp($2, $1)")
	sql = opMatchCI.ReplaceAllString(sql, "regexpi($2, $1)")
	sql = opMatchPlain.ReplaceAllString(sql, "regexp($2, $1)")

	return sql, nil
}
