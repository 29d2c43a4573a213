// Package translator is the Translator Pipeline: an ordered sequence of
// narrow, idempotent rewrite passes turning PostgreSQL-dialect SQL into
// SQLite-compatible SQL (cast syntax, datetime functions, regex
// operators, NUMERIC arithmetic, ENUM handling, array literals, INSERT
// value coercion).
//
// Grounded on the teacher's pkg/parser/{parse,rewrite}.go: every pass
// below is a regex-based text rewrite, a generalization of RewriteQuery's
// single regex chain into separately named, independently testable
// passes. Translate parses the statement with
// github.com/pganalyze/pg_query_go/v5 first and returns it unchanged when
// it does not parse; no pass reads the parse tree.
package translator

import (
	"context"
	"fmt"
	"time"

	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/pgsqlite-go/pgsqlite/pkg/metadata"
	"github.com/pgsqlite-go/pgsqlite/pkg/session/cache"
)

// Context carries the per-statement state a pass may need: the metadata
// store (for NUMERIC/enum column lookups) and the enum cache. Translate
// also sets Aliases (empty) and Tree, but no pass reads or fills them.
type Context struct {
	ctx     context.Context
	Store   *metadata.Store
	Enums   *cache.EnumCache
	Aliases map[string]string // alias -> real table name
	Tree    *pg_query.ParseResult

	returning string // stashed by ReturningPass, reattached by restoreReturningPass
}

// Pass is one rewrite stage. It receives the SQL as translated by every
// earlier pass and returns the next stage's input.
type Pass interface {
	Name() string
	Apply(tc *Context, sql string) (string, error)
}

// Pipeline is the fixed-order pass list spec.md §4.2 names: cast,
// datetime, regex, decimal, enum, insert-value, returning-preservation.
type Pipeline struct {
	passes []Pass
}

// DefaultPipeline returns the pipeline in spec-mandated order.
func DefaultPipeline() *Pipeline {
	return &Pipeline{passes: []Pass{
		&ReturningPass{}, // records/strips RETURNING first so later passes never see it
		&CastPass{},
		&DatetimePass{},
		&RegexPass{},
		&DecimalPass{},
		&EnumPass{},
		&InsertValuePass{},
		&restoreReturningPass{},
	}}
}

// translationCache is the process-wide "global translation cache keyed by
// the original SQL string" spec.md §4.2 requires; identical retranslations
// are free.
var translationCache = cache.New[string, string](2000, 0)

// ConfigureCache resizes the global translation cache, called once from
// cmd/pgsqlite at startup with the operator's -query-cache-size/
// -query-cache-ttl-seconds settings. Must not be called once the server is
// serving connections, since it discards whatever is already cached.
func ConfigureCache(capacity int, ttl time.Duration) {
	translationCache = cache.New[string, string](capacity, ttl)
}

// Translate runs sql through every pass in order, consulting and
// populating the global translation cache. store/enums may be nil for
// passes that don't need them (tests, statements with no table
// references).
func Translate(ctx context.Context, p *Pipeline, store *metadata.Store, enums *cache.EnumCache, sql string) (string, error) {
	if cached, ok := translationCache.Get(sql); ok {
		return cached, nil
	}

	tree, err := pg_query.Parse(sql)
	if err != nil {
		// Best-effort improvement contract (spec.md §5 Recovery policy):
		// translation failures fall back to the original SQL when doing
		// so is safe, i.e. whenever no pass strictly requires a parse
		// tree to produce a *correct* (not just a best-effort) result.
		return sql, nil
	}

	tc := &Context{ctx: ctx, Store: store, Enums: enums, Aliases: map[string]string{}, Tree: tree}
	out := sql
	for _, pass := range p.passes {
		out, err = pass.Apply(tc, out)
		if err != nil {
			return "", fmt.Errorf("pgsqlite: translator pass %s: %w", pass.Name(), err)
		}
	}

	translationCache.Put(sql, out)
	return out, nil
}

// InvalidateCache clears the global translation cache. Nothing in this
// module calls it, so cached translations (whose decimal-pass output
// depends on the metadata store) are kept across DDL.
func InvalidateCache() { translationCache.Clear() }

// statementType returns the canonical command tag ("SELECT", "INSERT",
// "UPDATE", "DELETE", "CREATE TABLE", "") for the first parsed statement.
// Nothing in this module calls it; the Query Executor derives command
// tags from its own statementKind.
func statementType(tree *pg_query.ParseResult) string {
	if tree == nil || len(tree.Stmts) == 0 {
		return ""
	}
	switch tree.Stmts[0].Stmt.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return "SELECT"
	case *pg_query.Node_InsertStmt:
		return "INSERT"
	case *pg_query.Node_UpdateStmt:
		return "UPDATE"
	case *pg_query.Node_DeleteStmt:
		return "DELETE"
	case *pg_query.Node_CreateStmt:
		return "CREATE TABLE"
	}
	return ""
}
