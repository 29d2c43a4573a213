package translator

// EnumPass implements spec.md §4.2 pass 5 as a named pipeline stage that
// returns the statement unchanged. Comparisons of enum-typed columns
// against literals pass through as written, and no literal is checked
// against the enum-values table (the cast pass's enumTypeExists only
// checks that a cast target names an enum type). Ordering comparisons
// (`<`/`>`/`<=`/`>=`) therefore use the underlying text collation rather
// than PostgreSQL's enum declaration order.
type EnumPass struct{}

func (EnumPass) Name() string { return "enum" }

func (EnumPass) Apply(tc *Context, sql string) (string, error) {
	return sql, nil
}
