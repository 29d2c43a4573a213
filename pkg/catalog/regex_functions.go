package catalog

import (
	"fmt"
	"regexp"
	"sync"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// registerRegexFunctions backs PostgreSQL's ~/~* operators (rewritten by
// the translator's regex pass into regexp()/regexpi() calls) with Go's
// standard library regexp package — no ecosystem regex engine in the pack
// improves on stdlib for this, since PostgreSQL's own regex dialect is
// already POSIX/PCRE-ish and Go's RE2 engine covers the common case the
// translator targets. Compiled patterns are cached, since the same
// pattern is typically reused across many rows in a single query.
func registerRegexFunctions(conn *sqlite3.SQLiteConn) error {
	fns := map[string]any{
		"regexp":  regexpFn,
		"regexpi": regexpiFn,
	}
	for name, fn := range fns {
		if err := conn.RegisterFunc(name, fn, true); err != nil {
			return fmt.Errorf("pgsqlite: registering %s(): %w", name, err)
		}
	}
	return nil
}

var (
	regexCacheMu sync.RWMutex
	regexCache   = map[string]*regexp.Regexp{}
)

func compileCached(pattern string) (*regexp.Regexp, error) {
	regexCacheMu.RLock()
	re, ok := regexCache[pattern]
	regexCacheMu.RUnlock()
	if ok {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("pgsqlite: invalid regular expression %q: %w", pattern, err)
	}

	regexCacheMu.Lock()
	regexCache[pattern] = re
	regexCacheMu.Unlock()
	return re, nil
}

func regexpFn(pattern, text string) (bool, error) {
	re, err := compileCached(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}

func regexpiFn(pattern, text string) (bool, error) {
	re, err := compileCached("(?i)" + pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}
