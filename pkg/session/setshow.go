package session

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

var (
	setTimeZonePattern = regexp.MustCompile(`(?i)^\s*SET\s+TIME\s*ZONE\s+(.+)$`)
	setParameterPattern = regexp.MustCompile(`(?i)^\s*SET\s+(\w+)\s+(?:TO|=)\s+(.+)$`)
	showParameterPattern = regexp.MustCompile(`(?i)^\s*SHOW\s+(.+?)\s*$`)
)

// Parameters is the set of run-time configuration parameters a client has
// set via SET (original_source/src/query/set_handler.rs), held per
// session and read back by SHOW through HandleSetShow, keyed uppercase to
// match PostgreSQL's case-insensitive GUC names. The Translator Pipeline
// and the pg_settings table do not read it.
type Parameters struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewParameters returns a Parameters seeded with the connection defaults
// spec.md §4.1 documents.
func NewParameters() *Parameters {
	return &Parameters{values: map[string]string{
		"CLIENT_ENCODING":              "UTF8",
		"SERVER_ENCODING":              "UTF8",
		"DATESTYLE":                    "ISO, MDY",
		"TIMEZONE":                     "UTC",
		"STANDARD_CONFORMING_STRINGS":  "on",
		"DEFAULT_TRANSACTION_ISOLATION": "read committed",
		"APPLICATION_NAME":             "",
	}}
}

func (p *Parameters) Get(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[strings.ToUpper(name)]
	return v, ok
}

func (p *Parameters) Set(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[strings.ToUpper(name)] = value
}

// staticShowValues are read-only GUCs SHOW must answer regardless of
// whether the client ever SET them, matching real PostgreSQL behavior for
// these names.
var staticShowValues = map[string]string{
	"TRANSACTION ISOLATION LEVEL":  "read committed",
	"DEFAULT_TRANSACTION_ISOLATION": "read committed",
	"TRANSACTION_ISOLATION":        "read committed",
	"SERVER_VERSION":               "14.9",
	"SERVER_VERSION_NUM":           "140009",
	"IS_SUPERUSER":                 "on",
	"SESSION_AUTHORIZATION":        "pgsqlite",
	"STANDARD_CONFORMING_STRINGS":  "on",
	"CLIENT_ENCODING":              "UTF8",
	"SERVER_ENCODING":              "UTF8",
}

// SetShowResult is what a SET or SHOW command produces: a command tag for
// SET, or a single named text column/value row for SHOW.
type SetShowResult struct {
	CommandTag string
	ShowName   string
	ShowValue  string
	IsShow     bool
}

// IsSetOrShow reports whether query is a SET or SHOW statement, used by
// the simple-query dispatcher to short-circuit before the Translator
// Pipeline and Query Executor ever see it — SET/SHOW mutate or read
// session state rather than the backing SQLite database.
func IsSetOrShow(query string) bool {
	trimmed := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(trimmed, "SET ") || strings.HasPrefix(trimmed, "SHOW ")
}

// HandleSetShow executes a SET or SHOW statement against params, returning
// the result the pgwire layer renders into CommandComplete/RowDescription/
// DataRow messages.
func HandleSetShow(params *Parameters, query string) (*SetShowResult, error) {
	trimmed := strings.TrimSpace(query)

	if m := setTimeZonePattern.FindStringSubmatch(trimmed); m != nil {
		tz := unquote(strings.TrimSpace(m[1]))
		params.Set("TIMEZONE", tz)
		return &SetShowResult{CommandTag: "SET"}, nil
	}

	if m := setParameterPattern.FindStringSubmatch(trimmed); m != nil {
		name := strings.ToUpper(m[1])
		value := unquote(strings.TrimSpace(m[2]))
		params.Set(name, value)
		return &SetShowResult{CommandTag: "SET"}, nil
	}

	if m := showParameterPattern.FindStringSubmatch(trimmed); m != nil {
		name := strings.ToUpper(strings.TrimSpace(m[1]))
		value, ok := staticShowValues[name]
		if !ok {
			value, ok = params.Get(name)
		}
		if !ok {
			value = "unset"
		}
		return &SetShowResult{
			IsShow:     true,
			ShowName:   strings.ToLower(name),
			ShowValue:  value,
			CommandTag: "SHOW",
		}, nil
	}

	return nil, fmt.Errorf("pgsqlite: unrecognized SET/SHOW command: %s", query)
}

func unquote(s string) string {
	s = strings.Trim(s, "'")
	s = strings.Trim(s, "\"")
	return s
}
