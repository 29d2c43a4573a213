package pgwire

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/jackc/pgx/v5/pgtype"
	pg_query "github.com/pganalyze/pg_query_go/v5"

	"github.com/pgsqlite-go/pgsqlite/pkg/metadata"
	"github.com/pgsqlite-go/pgsqlite/pkg/types"
)

// writeMessages writes/packages all messages to a single buffer before
// sending, grounded directly on the teacher's pkg/pgwire/utils.go helper
// of the same name.
func writeMessages(w io.Writer, msgs ...pgproto3.Message) error {
	var buf []byte
	for _, msg := range msgs {
		buf, _ = msg.Encode(buf)
	}
	_, err := w.Write(buf)
	return err
}

func getParameter(m map[string]string, k string) string {
	if m == nil {
		return ""
	}
	return m[k]
}

// fromTablePattern extracts the first table name following a FROM clause,
// the same coarse single-table heuristic pkg/translator's passes use when
// they need a table name without a full join-aware AST walk.
var fromTablePattern = regexp.MustCompile(`(?i)\bFROM\s+"?([A-Za-z_][A-Za-z0-9_]*)"?`)

func tableHint(sqlText string) string {
	m := fromTablePattern.FindStringSubmatch(sqlText)
	if m == nil {
		return ""
	}
	return m[1]
}

// columnOIDs resolves the PostgreSQL OID of every result column, consulting
// the metadata store's recorded column-type overrides first (so DATE,
// TIMESTAMP, and NUMERIC columns, all stored in plain SQLite INTEGER/TEXT
// columns, report their real type rather than the storage affinity) and
// falling back to a guess from the first row's Go runtime type otherwise,
// the same shape of heuristic as the teacher's db.ValueToOID.
func columnOIDs(ctx context.Context, store *metadata.Store, sqlText string, cols []string, sample []any) []uint32 {
	oids := make([]uint32, len(cols))
	table := tableHint(sqlText)

	var overrides map[string]metadata.ColumnType
	if store != nil && table != "" {
		if cts, err := store.ColumnTypesForTable(ctx, table); err == nil {
			overrides = make(map[string]metadata.ColumnType, len(cts))
			for _, ct := range cts {
				overrides[ct.ColumnName] = ct
			}
		}
	}

	for i, name := range cols {
		if overrides != nil {
			if ct, ok := overrides[name]; ok {
				if d, ok := types.ByName(ct.PgType); ok {
					oids[i] = d.OID
					continue
				}
			}
		}
		var v any
		if sample != nil && i < len(sample) {
			v = sample[i]
		}
		oids[i] = guessOID(v)
	}
	return oids
}

// guessOID infers an OID from the Go type database/sql scans a SQLite
// value into, used whenever no __pgsqlite_schema override narrows a
// column beyond its bare storage affinity.
func guessOID(v any) uint32 {
	switch v.(type) {
	case int64, int32, int, int16:
		return pgtype.Int8OID
	case float64, float32:
		return pgtype.Float8OID
	case bool:
		return pgtype.BoolOID
	case []byte:
		return pgtype.ByteaOID
	case time.Time:
		return pgtype.TimestampOID
	case nil:
		return pgtype.TextOID
	default:
		return pgtype.TextOID
	}
}

// resultFormat resolves the format code (0=text, 1=binary) a column
// should be sent in, per the PostgreSQL protocol's broadcast rule: zero
// format codes means text for everything, one means that code for every
// column, otherwise one code per column.
func resultFormat(codes []int16, i int) int16 {
	switch len(codes) {
	case 0:
		return pgtype.TextFormatCode
	case 1:
		return codes[0]
	default:
		if i < len(codes) {
			return codes[i]
		}
		return pgtype.TextFormatCode
	}
}

// toRowDescription builds the RowDescription message for a result set,
// declaring a width of 8 for registered types with INTEGER or REAL
// affinity and -1 (variable length) for every other type.
func toRowDescription(cols []string, oids []uint32, formats []int16) *pgproto3.RowDescription {
	var desc pgproto3.RowDescription
	for i, name := range cols {
		format := resultFormat(formats, i)
		oid := oids[i]
		typeSize := int16(-1)
		if d, ok := types.ByOID(oid); ok {
			switch d.Affinity {
			case types.AffinityInteger:
				typeSize = 8
			case types.AffinityReal:
				typeSize = 8
			}
		}
		desc.Fields = append(desc.Fields, pgproto3.FieldDescription{
			Name:         []byte(name),
			DataTypeOID:  oid,
			DataTypeSize: typeSize,
			TypeModifier: -1,
			Format:       format,
		})
	}
	return &desc
}

// encodeDataRow renders one result row into the wire format, using the
// Type Registry's codecs for any OID it recognizes and a plain %v text
// fallback (grouped with TextOID) for anything the registry doesn't carry
// a descriptor for — an unregistered OID can only reach this path via the
// naive int8/float8/text/bool/bytea/timestamp guesses in guessOID or a
// metadata override resolved through types.ByName, all of which the
// registry does cover; nil values are sent as SQL NULL before the lookup.
func encodeDataRow(values []any, oids []uint32, formats []int16) (*pgproto3.DataRow, error) {
	row := pgproto3.DataRow{Values: make([][]byte, len(values))}
	for i, v := range values {
		if v == nil {
			row.Values[i] = nil
			continue
		}
		format := resultFormat(formats, i)
		d, ok := types.ByOID(oids[i])
		if !ok {
			row.Values[i] = []byte(fmt.Sprint(v))
			continue
		}
		if format == pgtype.BinaryFormatCode {
			b, err := d.EncodeBinary(v)
			if err != nil {
				return nil, fmt.Errorf("pgsqlite: encoding column %d: %w", i, err)
			}
			row.Values[i] = b
			continue
		}
		s, err := d.EncodeText(v)
		if err != nil {
			return nil, fmt.Errorf("pgsqlite: encoding column %d: %w", i, err)
		}
		row.Values[i] = []byte(s)
	}
	return &row, nil
}

// decodeBindParams turns a Bind message's raw parameter bytes into Go
// values the Query Executor can pass straight to database/sql, using the
// Type Registry's DecodeText/DecodeBinary per the negotiated OID and
// format code, and falling back to the raw text when the client never
// told us (and Describe was skipped) what type a parameter is — OID 0
// ("unspecified") is legal per the protocol and SQLite's own type
// affinity handles the untyped bind value correctly in practice.
func decodeBindParams(paramValues [][]byte, paramOIDs []uint32, formats []int16) ([]any, error) {
	out := make([]any, len(paramValues))
	for i, raw := range paramValues {
		if raw == nil {
			out[i] = nil
			continue
		}
		var oid uint32
		if i < len(paramOIDs) {
			oid = paramOIDs[i]
		}
		format := resultFormat(formats, i)

		d, ok := types.ByOID(oid)
		if !ok || oid == 0 {
			out[i] = string(raw)
			continue
		}
		if format == pgtype.BinaryFormatCode {
			v, err := d.DecodeBinary(raw)
			if err != nil {
				return nil, fmt.Errorf("pgsqlite: decoding parameter %d: %w", i, err)
			}
			out[i] = v
			continue
		}
		v, err := d.DecodeText(string(raw))
		if err != nil {
			return nil, fmt.Errorf("pgsqlite: decoding parameter %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// placeholderPattern counts a query's distinct $n bind placeholders, used
// to size the parameter-OID array for a Parse message the client didn't
// supply explicit ParameterOIDs for.
var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

func placeholderCount(query string) int {
	max := 0
	for _, m := range placeholderPattern.FindAllStringSubmatch(query, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > max {
			max = n
		}
	}
	return max
}

// splitStatements slices a simple-query message's text into its
// constituent statements using pg_query's reported statement boundaries
// (StmtLocation/StmtLen index into the original byte string), preserving
// each statement's exact original source text rather than reformatting it
// through Deparse, which would lose literal formatting the translator
// passes still need to see. Falls back to a single-statement result on a
// parse error, matching Translate's own best-effort recovery policy.
func splitStatements(query string) []string {
	tree, err := pg_query.Parse(query)
	if err != nil || len(tree.Stmts) == 0 {
		trimmed := strings.TrimSpace(strings.TrimRight(query, "; \t\n"))
		if trimmed == "" {
			return nil
		}
		return []string{trimmed}
	}

	out := make([]string, 0, len(tree.Stmts))
	for _, stmt := range tree.Stmts {
		start := int(stmt.StmtLocation)
		length := int(stmt.StmtLen)
		var text string
		if length > 0 && start+length <= len(query) {
			text = query[start : start+length]
		} else if start < len(query) {
			text = query[start:]
		} else {
			continue
		}
		text = strings.TrimSpace(strings.TrimRight(text, "; \t\n"))
		if text == "" {
			continue
		}
		out = append(out, text)
	}
	return out
}
