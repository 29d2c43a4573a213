package catalog

import (
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pgsqlite-go/pgsqlite/pkg/types"
)

// registerDatetimeFunctions wires now()/extract()/date_trunc() into
// SQLite for the datetime pass, operating on the microseconds-since-
// 2000-01-01 integer storage pkg/types' datetime codecs use, so these
// functions never need to parse a text timestamp at all.
func registerDatetimeFunctions(conn *sqlite3.SQLiteConn) error {
	fns := map[string]any{
		"now":                   nowFn,
		"extract":               extractFn,
		"date_trunc":            dateTruncFn,
		"pgsqlite_to_date":      pgsqliteToDateFn,
		"pgsqlite_to_time":      pgsqliteToTimeFn,
		"pgsqlite_to_timestamp": pgsqliteToTimestampFn,
	}
	for name, fn := range fns {
		if err := conn.RegisterFunc(name, fn, false); err != nil {
			return fmt.Errorf("pgsqlite: registering %s(): %w", name, err)
		}
	}
	return nil
}

var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func nowFn() int64 {
	return time.Now().UTC().Sub(pgEpoch).Microseconds()
}

func microsToTime(micros int64) time.Time {
	return pgEpoch.Add(time.Duration(micros) * time.Microsecond)
}

func extractFn(field string, micros int64) (float64, error) {
	t := microsToTime(micros)
	switch strings.ToLower(field) {
	case "year":
		return float64(t.Year()), nil
	case "month":
		return float64(t.Month()), nil
	case "day":
		return float64(t.Day()), nil
	case "hour":
		return float64(t.Hour()), nil
	case "minute":
		return float64(t.Minute()), nil
	case "second":
		return float64(t.Second()) + float64(t.Nanosecond())/1e9, nil
	case "dow":
		return float64(t.Weekday()), nil
	case "doy":
		return float64(t.YearDay()), nil
	case "epoch":
		return float64(t.Unix()) + float64(t.Nanosecond())/1e9, nil
	}
	return 0, fmt.Errorf("pgsqlite: unsupported extract field %q", field)
}

// pgsqliteToDateFn/pgsqliteToTimeFn/pgsqliteToTimestampFn back the
// CastPass's `expr::date`/`::time`/`::timestamp` rewrite: they decode a
// PostgreSQL text literal into the same integer representation (days or
// microseconds since 2000-01-01) pkg/types' text codecs produce, so a
// cast applied to a literal and a column read back through the wire
// codec always agree on what's stored. Non-literal operands pass the
// same text through SQLite's own value at call time.
func pgsqliteToDateFn(s string) (int64, error) {
	d, ok := types.ByName("date")
	if !ok {
		return 0, fmt.Errorf("pgsqlite: date type descriptor not registered")
	}
	v, err := d.DecodeText(s)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func pgsqliteToTimeFn(s string) (int64, error) {
	d, ok := types.ByName("time")
	if !ok {
		return 0, fmt.Errorf("pgsqlite: time type descriptor not registered")
	}
	v, err := d.DecodeText(s)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func pgsqliteToTimestampFn(s string) (int64, error) {
	d, ok := types.ByName("timestamp")
	if !ok {
		return 0, fmt.Errorf("pgsqlite: timestamp type descriptor not registered")
	}
	v, err := d.DecodeText(s)
	if err != nil {
		return 0, err
	}
	return v.(int64), nil
}

func dateTruncFn(field string, micros int64) (int64, error) {
	t := microsToTime(micros)
	var truncated time.Time
	switch strings.ToLower(field) {
	case "year":
		truncated = time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	case "month":
		truncated = time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	case "day":
		truncated = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case "hour":
		truncated = t.Truncate(time.Hour)
	case "minute":
		truncated = t.Truncate(time.Minute)
	case "second":
		truncated = t.Truncate(time.Second)
	default:
		return 0, fmt.Errorf("pgsqlite: unsupported date_trunc field %q", field)
	}
	return truncated.Sub(pgEpoch).Microseconds(), nil
}
