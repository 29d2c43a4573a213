package translator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	nowOrCurrentTimestamp = regexp.MustCompile(`(?i)\b(NOW\(\)|CURRENT_TIMESTAMP\b)`)
	createTablePattern    = regexp.MustCompile(`(?i)^\s*CREATE\s+TABLE\b`)
	extractPattern        = regexp.MustCompile(`(?i)\bEXTRACT\s*\(\s*(\w+)\s+FROM\s+(.+?)\)`)
	dateTruncPattern      = regexp.MustCompile(`(?i)\bDATE_TRUNC\s*\(\s*'([^']+)'\s*,\s*(.+?)\)`)
	intervalLiteral       = regexp.MustCompile(`(?i)INTERVAL\s+'([^']+)'`)
	atTimeZonePattern     = regexp.MustCompile(`(?i)(.+?)\s+AT\s+TIME\s+ZONE\s+'([^']+)'`)
)

// DatetimePass implements spec.md §4.2 pass 2: NOW()/CURRENT_TIMESTAMP →
// now() (except inside CREATE TABLE DEFAULT clauses, where SQLite's own
// built-in is correct for column-default semantics), EXTRACT/DATE_TRUNC
// rewritten to the registered functions, INTERVAL literals parsed into
// integer microseconds, and AT TIME ZONE folded into an additive offset.
type DatetimePass struct{}

func (DatetimePass) Name() string { return "datetime" }

func (DatetimePass) Apply(tc *Context, sql string) (string, error) {
	if !createTablePattern.MatchString(sql) {
		sql = nowOrCurrentTimestamp.ReplaceAllString(sql, "now()")
	}

	sql = extractPattern.ReplaceAllString(sql, "extract('$1', $2)")
	sql = dateTruncPattern.ReplaceAllString(sql, "date_trunc('$1', $2)")

	sql = intervalLiteral.ReplaceAllStringFunc(sql, func(m string) string {
		sub := intervalLiteral.FindStringSubmatch(m)
		micros, err := parseIntervalMicros(sub[1])
		if err != nil {
			return m
		}
		return strconv.FormatInt(micros, 10)
	})

	sql = atTimeZonePattern.ReplaceAllStringFunc(sql, func(m string) string {
		sub := atTimeZonePattern.FindStringSubmatch(m)
		offset, err := zoneOffsetSeconds(sub[2])
		if err != nil {
			return m
		}
		return fmt.Sprintf("(%s + %d000000)", strings.TrimSpace(sub[1]), offset)
	})

	return sql, nil
}

// parseIntervalMicros parses a PostgreSQL interval literal body ("2 days",
// "1 mon", "1 hour 30 minutes") into total microseconds. Fields are read
// as number-unit pairs; an hh:mm:ss field is not parsed, and a trailing
// field without a unit is ignored. It also ignores the
// month/day vs. time distinction real PostgreSQL intervals preserve
// (spec.md documents INTERVAL literals becoming plain integer
// microseconds at the translation boundary, not a {months,days,micros}
// triple — that richer representation is reserved for values flowing
// through the binary wire codec in pkg/types).
func parseIntervalMicros(body string) (int64, error) {
	fields := strings.Fields(body)
	var total int64
	for i := 0; i+1 < len(fields); i += 2 {
		n, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return 0, err
		}
		unit := strings.ToLower(strings.TrimSuffix(fields[i+1], "s"))
		var seconds float64
		switch unit {
		case "second", "sec":
			seconds = n
		case "minute", "min":
			seconds = n * 60
		case "hour":
			seconds = n * 3600
		case "day":
			seconds = n * 86400
		case "week":
			seconds = n * 86400 * 7
		case "month", "mon":
			seconds = n * 86400 * 30
		case "year":
			seconds = n * 86400 * 365
		default:
			return 0, fmt.Errorf("pgsqlite: unsupported interval unit %q", fields[i+1])
		}
		total += int64(seconds * 1e6)
	}
	return total, nil
}

func zoneOffsetSeconds(zone string) (int, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return 0, err
	}
	_, offset := time.Now().In(loc).Zone()
	return offset, nil
}
