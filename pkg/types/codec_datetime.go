package types

import (
	"encoding/binary"
	"fmt"
	"time"
)

// pgEpoch is the zero point PostgreSQL's binary date/timestamp formats are
// measured from (2000-01-01), per spec.md §6's binary codec table.
var pgEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	dateLayout      = "2006-01-02"
	timeLayout      = "15:04:05.999999"
	timestampLayout = "2006-01-02 15:04:05.999999"
)

// Dates and timestamps are stored in SQLite as INTEGER: days-since-epoch
// for DATE, microseconds-since-epoch for TIMESTAMP/TIMESTAMPTZ, matching
// the binary wire units directly so no conversion is needed on the hot
// path between storage and binary-format clients.

func encodeDateText(v any) (string, error) {
	if days, ok := v.(int64); ok {
		return pgEpoch.AddDate(0, 0, int(days)).Format(dateLayout), nil
	}
	t, err := asTime(v)
	if err != nil {
		return "", err
	}
	return t.Format(dateLayout), nil
}

func decodeDateText(s string) (any, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("pgsqlite: invalid date text %q: %w", s, err)
	}
	return daysSinceEpoch(t), nil
}

func encodeDateBinary(v any) ([]byte, error) {
	days, err := asInt64(v)
	if err != nil {
		t, terr := asTime(v)
		if terr != nil {
			return nil, err
		}
		days = daysSinceEpoch(t)
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(int32(days)))
	return buf, nil
}

func decodeDateBinary(b []byte) (any, error) {
	if len(b) != 4 {
		return nil, fmt.Errorf("pgsqlite: invalid date binary length %d", len(b))
	}
	return int64(int32(binary.BigEndian.Uint32(b))), nil
}

func daysSinceEpoch(t time.Time) int64 {
	return int64(t.Sub(pgEpoch).Hours() / 24)
}

func encodeTimeText(v any) (string, error) {
	t, err := asTime(v)
	if err != nil {
		return "", err
	}
	return t.Format(timeLayout), nil
}

func decodeTimeText(s string) (any, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return nil, fmt.Errorf("pgsqlite: invalid time text %q: %w", s, err)
	}
	micros := int64(t.Hour())*3600e6 + int64(t.Minute())*60e6 + int64(t.Second())*1e6 + int64(t.Nanosecond())/1000
	return micros, nil
}

func encodeTimeBinary(v any) ([]byte, error) {
	micros, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(micros))
	return buf, nil
}

func decodeTimeBinary(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, fmt.Errorf("pgsqlite: invalid time binary length %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func encodeTimestampText(v any) (string, error) {
	t, err := asTime(v)
	if err != nil {
		return "", err
	}
	return t.Format(timestampLayout), nil
}

func decodeTimestampText(s string) (any, error) {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("pgsqlite: invalid timestamp text %q: %w", s, err)
		}
	}
	return microsSinceEpoch(t), nil
}

func encodeTimestampBinary(v any) ([]byte, error) {
	micros, err := asInt64(v)
	if err != nil {
		t, terr := asTime(v)
		if terr != nil {
			return nil, err
		}
		micros = microsSinceEpoch(t)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(micros))
	return buf, nil
}

func decodeTimestampBinary(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, fmt.Errorf("pgsqlite: invalid timestamp binary length %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func microsSinceEpoch(t time.Time) int64 {
	return t.Sub(pgEpoch).Microseconds()
}

func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case int64:
		return pgEpoch.Add(time.Duration(t) * time.Microsecond), nil
	}
	return time.Time{}, &ErrUnsupported{Value: v}
}

// Interval is the Go representation of PostgreSQL's three-component
// interval type: whole months, whole days, and microseconds — kept
// separate because month/day lengths are calendar-dependent, per
// PostgreSQL's own interval semantics.
type Interval struct {
	Months  int32
	Days    int32
	Micros  int64
}

func encodeIntervalText(v any) (string, error) {
	iv, ok := v.(Interval)
	if !ok {
		return "", &ErrUnsupported{Value: v}
	}
	years := iv.Months / 12
	months := iv.Months % 12
	secs := iv.Micros / 1_000_000
	hours := secs / 3600
	mins := (secs % 3600) / 60
	rem := secs % 60
	return fmt.Sprintf("%d years %d mons %d days %02d:%02d:%02d", years, months, iv.Days, hours, mins, rem), nil
}

func decodeIntervalText(s string) (any, error) {
	var years, months, days, hours, mins, secs int
	_, err := fmt.Sscanf(s, "%d years %d mons %d days %02d:%02d:%02d", &years, &months, &days, &hours, &mins, &secs)
	if err != nil {
		return nil, fmt.Errorf("pgsqlite: invalid interval text %q: %w", s, err)
	}
	return Interval{
		Months: int32(years*12 + months),
		Days:   int32(days),
		Micros: int64(hours)*3600e6 + int64(mins)*60e6 + int64(secs)*1e6,
	}, nil
}

func encodeIntervalBinary(v any) ([]byte, error) {
	iv, ok := v.(Interval)
	if !ok {
		return nil, &ErrUnsupported{Value: v}
	}
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(iv.Micros))
	binary.BigEndian.PutUint32(buf[8:12], uint32(iv.Days))
	binary.BigEndian.PutUint32(buf[12:16], uint32(iv.Months))
	return buf, nil
}

func decodeIntervalBinary(b []byte) (any, error) {
	if len(b) != 16 {
		return nil, fmt.Errorf("pgsqlite: invalid interval binary length %d", len(b))
	}
	return Interval{
		Micros: int64(binary.BigEndian.Uint64(b[0:8])),
		Days:   int32(binary.BigEndian.Uint32(b[8:12])),
		Months: int32(binary.BigEndian.Uint32(b[12:16])),
	}, nil
}
