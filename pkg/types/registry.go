// Package types is the closed enumeration of PostgreSQL types the gateway
// understands: their OIDs, SQLite storage affinities, and text/binary wire
// codecs.
package types

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
)

// Category groups types that share rewrite and codec behavior.
type Category int

const (
	CategoryNumeric Category = iota
	CategoryString
	CategoryDatetime
	CategoryBoolean
	CategoryBinary
	CategoryNetwork
	CategoryRange
	CategoryBit
	CategoryEnum
	CategoryPseudo
)

// Affinity is the SQLite storage class a column backing a PostgreSQL type
// is declared with.
type Affinity string

const (
	AffinityInteger Affinity = "INTEGER"
	AffinityReal    Affinity = "REAL"
	AffinityText    Affinity = "TEXT"
	AffinityBlob    Affinity = "BLOB"
	AffinityNumeric Affinity = "NUMERIC"
)

// Descriptor is the per-type metadata described in spec.md §3.
type Descriptor struct {
	OID      uint32
	Name     string
	Category Category
	Affinity Affinity

	// EncodeText/DecodeText round-trip the PostgreSQL text wire format.
	EncodeText func(v any) (string, error)
	DecodeText func(s string) (any, error)

	// EncodeBinary/DecodeBinary round-trip the PostgreSQL binary wire
	// format (network byte order).
	EncodeBinary func(v any) ([]byte, error)
	DecodeBinary func(b []byte) (any, error)

	// HasTypmod reports whether this type carries a typmod (e.g. NUMERIC(p,s),
	// VARCHAR(n)) that affects decoding.
	HasTypmod bool
}

// registry is the closed set of supported descriptors, keyed by OID and by
// canonical name. It is built once at init time and never mutated, so reads
// need no lock.
var (
	byOID  = map[uint32]*Descriptor{}
	byName = map[string]*Descriptor{}
)

func register(d *Descriptor) {
	byOID[d.OID] = d
	byName[d.Name] = d
}

// ByOID looks up a descriptor by its stable PostgreSQL OID.
func ByOID(oid uint32) (*Descriptor, bool) {
	d, ok := byOID[oid]
	return d, ok
}

// ByName looks up a descriptor by its canonical PostgreSQL type name
// (e.g. "int4", "numeric", "timestamptz").
func ByName(name string) (*Descriptor, bool) {
	d, ok := byName[name]
	return d, ok
}

// AllDescriptors returns every registered built-in type descriptor, used
// by pkg/catalog to synthesize pg_type rows.
func AllDescriptors() []*Descriptor {
	out := make([]*Descriptor, 0, len(byOID))
	for _, d := range byOID {
		out = append(out, d)
	}
	return out
}

// AffinityFor returns the SQLite storage affinity to declare a column of
// the given PostgreSQL type with. Enum columns and any OID the registry
// does not recognize fall back to TEXT, matching spec.md's invariant that
// "every column with a PostgreSQL type not natively representable in
// SQLite has exactly one row in schema recording its ... chosen
// sqlite-type."
func AffinityFor(oid uint32) Affinity {
	if d, ok := ByOID(oid); ok {
		return d.Affinity
	}
	return AffinityText
}

func init() {
	register(&Descriptor{OID: pgtype.BoolOID, Name: "bool", Category: CategoryBoolean, Affinity: AffinityInteger,
		EncodeText: encodeBoolText, DecodeText: decodeBoolText,
		EncodeBinary: encodeBoolBinary, DecodeBinary: decodeBoolBinary})

	register(&Descriptor{OID: pgtype.Int2OID, Name: "int2", Category: CategoryNumeric, Affinity: AffinityInteger,
		EncodeText: encodeIntText, DecodeText: decodeIntText(16),
		EncodeBinary: encodeInt2Binary, DecodeBinary: decodeInt2Binary})

	register(&Descriptor{OID: pgtype.Int4OID, Name: "int4", Category: CategoryNumeric, Affinity: AffinityInteger,
		EncodeText: encodeIntText, DecodeText: decodeIntText(32),
		EncodeBinary: encodeInt4Binary, DecodeBinary: decodeInt4Binary})

	register(&Descriptor{OID: pgtype.Int8OID, Name: "int8", Category: CategoryNumeric, Affinity: AffinityInteger,
		EncodeText: encodeIntText, DecodeText: decodeIntText(64),
		EncodeBinary: encodeInt8Binary, DecodeBinary: decodeInt8Binary})

	register(&Descriptor{OID: pgtype.Float4OID, Name: "float4", Category: CategoryNumeric, Affinity: AffinityReal,
		EncodeText: encodeFloatText, DecodeText: decodeFloat4Text,
		EncodeBinary: encodeFloat4Binary, DecodeBinary: decodeFloat4Binary})

	register(&Descriptor{OID: pgtype.Float8OID, Name: "float8", Category: CategoryNumeric, Affinity: AffinityReal,
		EncodeText: encodeFloatText, DecodeText: decodeFloat8Text,
		EncodeBinary: encodeFloat8Binary, DecodeBinary: decodeFloat8Binary})

	register(&Descriptor{OID: pgtype.NumericOID, Name: "numeric", Category: CategoryNumeric, Affinity: AffinityNumeric,
		HasTypmod: true,
		EncodeText: encodeNumericText, DecodeText: decodeNumericText,
		EncodeBinary: encodeNumericBinary, DecodeBinary: decodeNumericBinary})

	register(&Descriptor{OID: pgtype.TextOID, Name: "text", Category: CategoryString, Affinity: AffinityText,
		EncodeText: encodeTextText, DecodeText: decodeTextText,
		EncodeBinary: encodeTextBinary, DecodeBinary: decodeTextBinary})

	register(&Descriptor{OID: pgtype.VarcharOID, Name: "varchar", Category: CategoryString, Affinity: AffinityText,
		HasTypmod: true,
		EncodeText: encodeTextText, DecodeText: decodeTextText,
		EncodeBinary: encodeTextBinary, DecodeBinary: decodeTextBinary})

	register(&Descriptor{OID: pgtype.BPCharOID, Name: "bpchar", Category: CategoryString, Affinity: AffinityText,
		HasTypmod: true,
		EncodeText: encodeTextText, DecodeText: decodeTextText,
		EncodeBinary: encodeTextBinary, DecodeBinary: decodeTextBinary})

	register(&Descriptor{OID: pgtype.ByteaOID, Name: "bytea", Category: CategoryBinary, Affinity: AffinityBlob,
		EncodeText: encodeByteaText, DecodeText: decodeByteaText,
		EncodeBinary: encodeByteaBinary, DecodeBinary: decodeByteaBinary})

	register(&Descriptor{OID: pgtype.DateOID, Name: "date", Category: CategoryDatetime, Affinity: AffinityInteger,
		EncodeText: encodeDateText, DecodeText: decodeDateText,
		EncodeBinary: encodeDateBinary, DecodeBinary: decodeDateBinary})

	register(&Descriptor{OID: pgtype.TimeOID, Name: "time", Category: CategoryDatetime, Affinity: AffinityInteger,
		EncodeText: encodeTimeText, DecodeText: decodeTimeText,
		EncodeBinary: encodeTimeBinary, DecodeBinary: decodeTimeBinary})

	register(&Descriptor{OID: pgtype.TimestampOID, Name: "timestamp", Category: CategoryDatetime, Affinity: AffinityInteger,
		EncodeText: encodeTimestampText, DecodeText: decodeTimestampText,
		EncodeBinary: encodeTimestampBinary, DecodeBinary: decodeTimestampBinary})

	register(&Descriptor{OID: pgtype.TimestamptzOID, Name: "timestamptz", Category: CategoryDatetime, Affinity: AffinityInteger,
		EncodeText: encodeTimestampText, DecodeText: decodeTimestampText,
		EncodeBinary: encodeTimestampBinary, DecodeBinary: decodeTimestampBinary})

	register(&Descriptor{OID: pgtype.IntervalOID, Name: "interval", Category: CategoryDatetime, Affinity: AffinityText,
		EncodeText: encodeIntervalText, DecodeText: decodeIntervalText,
		EncodeBinary: encodeIntervalBinary, DecodeBinary: decodeIntervalBinary})

	register(&Descriptor{OID: pgtype.JSONOID, Name: "json", Category: CategoryString, Affinity: AffinityText,
		EncodeText: encodeTextText, DecodeText: decodeTextText,
		EncodeBinary: encodeTextBinary, DecodeBinary: decodeTextBinary})

	register(&Descriptor{OID: pgtype.JSONBOID, Name: "jsonb", Category: CategoryString, Affinity: AffinityText,
		EncodeText: encodeTextText, DecodeText: decodeTextText,
		EncodeBinary: encodeTextBinary, DecodeBinary: decodeTextBinary})

	register(&Descriptor{OID: pgtype.UUIDOID, Name: "uuid", Category: CategoryString, Affinity: AffinityText,
		EncodeText: encodeTextText, DecodeText: decodeTextText,
		EncodeBinary: encodeTextBinary, DecodeBinary: decodeTextBinary})

	register(&Descriptor{OID: pgtype.Int4ArrayOID, Name: "_int4", Category: CategoryString, Affinity: AffinityText,
		EncodeText: encodeTextText, DecodeText: decodeTextText,
		EncodeBinary: encodeTextBinary, DecodeBinary: decodeTextBinary})

	register(&Descriptor{OID: pgtype.TextArrayOID, Name: "_text", Category: CategoryString, Affinity: AffinityText,
		EncodeText: encodeTextText, DecodeText: decodeTextText,
		EncodeBinary: encodeTextBinary, DecodeBinary: decodeTextBinary})
}

// ErrUnsupported is returned when a codec is asked to handle a value shape
// it does not recognize.
type ErrUnsupported struct {
	OID   uint32
	Value any
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("pgsqlite: unsupported value %#v for OID %d", e.Value, e.OID)
}
