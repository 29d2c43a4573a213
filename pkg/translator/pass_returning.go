package translator

import (
	"regexp"
	"strings"
)

// returningPattern finds a trailing RETURNING clause outside of any
// string literal. Good enough for the common case (RETURNING at
// top-level, not nested inside a CTE) that spec.md §4.2 pass 7 names.
var returningPattern = regexp.MustCompile(`(?is)\s+RETURNING\s+.+$`)

// ReturningPass records and strips a trailing RETURNING clause before any
// other pass runs, so the cast/decimal/insert-value passes never need to
// special-case it, then hands it back to restoreReturningPass at the end
// of the pipeline. The two halves communicate through the Context rather
// than a package-level variable so concurrent Translate calls can't race.
type ReturningPass struct{}

func (ReturningPass) Name() string { return "returning" }

func (ReturningPass) Apply(tc *Context, sql string) (string, error) {
	loc := returningPattern.FindStringIndex(sql)
	if loc == nil {
		return sql, nil
	}
	tc.returning = sql[loc[0]:]
	return sql[:loc[0]], nil
}

type restoreReturningPass struct{}

func (restoreReturningPass) Name() string { return "returning-restore" }

func (restoreReturningPass) Apply(tc *Context, sql string) (string, error) {
	if tc.returning == "" {
		return sql, nil
	}
	return strings.TrimRight(sql, " \t\n;") + tc.returning, nil
}
