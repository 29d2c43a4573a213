package types

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"
	"strconv"

	"github.com/shopspring/decimal"
)

func encodeBoolText(v any) (string, error) {
	b, ok := v.(bool)
	if !ok {
		return "", &ErrUnsupported{Value: v}
	}
	if b {
		return "t", nil
	}
	return "f", nil
}

func decodeBoolText(s string) (any, error) {
	switch s {
	case "t", "true", "1", "TRUE", "T":
		return true, nil
	case "f", "false", "0", "FALSE", "F":
		return false, nil
	}
	return nil, fmt.Errorf("pgsqlite: invalid boolean text %q", s)
}

func encodeBoolBinary(v any) ([]byte, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, &ErrUnsupported{Value: v}
	}
	if b {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func decodeBoolBinary(b []byte) (any, error) {
	if len(b) != 1 {
		return nil, fmt.Errorf("pgsqlite: invalid boolean binary length %d", len(b))
	}
	return b[0] != 0, nil
}

func encodeIntText(v any) (string, error) {
	switch n := v.(type) {
	case int64:
		return strconv.FormatInt(n, 10), nil
	case int32:
		return strconv.FormatInt(int64(n), 10), nil
	case int16:
		return strconv.FormatInt(int64(n), 10), nil
	case int:
		return strconv.Itoa(n), nil
	}
	return "", &ErrUnsupported{Value: v}
}

func decodeIntText(bits int) func(string) (any, error) {
	return func(s string) (any, error) {
		n, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			return nil, fmt.Errorf("pgsqlite: invalid int%d text %q: %w", bits, s, err)
		}
		return n, nil
	}
}

func encodeInt2Binary(v any) ([]byte, error) {
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, uint16(int16(n)))
	return buf, nil
}

func decodeInt2Binary(b []byte) (any, error) {
	if len(b) != 2 {
		return nil, fmt.Errorf("pgsqlite: invalid int2 binary length %d", len(b))
	}
	return int64(int16(binary.BigEndian.Uint16(b))), nil
}

func encodeInt4Binary(v any) ([]byte, error) {
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(int32(n)))
	return buf, nil
}

func decodeInt4Binary(b []byte) (any, error) {
	if len(b) != 4 {
		return nil, fmt.Errorf("pgsqlite: invalid int4 binary length %d", len(b))
	}
	return int64(int32(binary.BigEndian.Uint32(b))), nil
}

func encodeInt8Binary(v any) ([]byte, error) {
	n, err := asInt64(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf, nil
}

func decodeInt8Binary(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, fmt.Errorf("pgsqlite: invalid int8 binary length %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func asInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int32:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int:
		return int64(n), nil
	}
	return 0, &ErrUnsupported{Value: v}
}

func encodeFloatText(v any) (string, error) {
	switch f := v.(type) {
	case float64:
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(f), 'g', -1, 32), nil
	}
	return "", &ErrUnsupported{Value: v}
}

func decodeFloat4Text(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return nil, fmt.Errorf("pgsqlite: invalid float4 text %q: %w", s, err)
	}
	return f, nil
}

func decodeFloat8Text(s string) (any, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("pgsqlite: invalid float8 text %q: %w", s, err)
	}
	return f, nil
}

func encodeFloat4Binary(v any) ([]byte, error) {
	f, err := asFloat64(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, math.Float32bits(float32(f)))
	return buf, nil
}

func decodeFloat4Binary(b []byte) (any, error) {
	if len(b) != 4 {
		return nil, fmt.Errorf("pgsqlite: invalid float4 binary length %d", len(b))
	}
	return float64(math.Float32frombits(binary.BigEndian.Uint32(b))), nil
}

func encodeFloat8Binary(v any) ([]byte, error) {
	f, err := asFloat64(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(f))
	return buf, nil
}

func decodeFloat8Binary(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, fmt.Errorf("pgsqlite: invalid float8 binary length %d", len(b))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func asFloat64(v any) (float64, error) {
	switch f := v.(type) {
	case float64:
		return f, nil
	case float32:
		return float64(f), nil
	}
	return 0, &ErrUnsupported{Value: v}
}

// encodeNumericText/decodeNumericText pass the decimal's canonical string
// straight through; SQLite stores NUMERIC columns as TEXT via the NUMERIC
// affinity declared in pkg/metadata, and the Translator Pipeline's decimal
// pass is what performs arithmetic on that text via the registered
// decimal_* SQLite functions.
func encodeNumericText(v any) (string, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n.String(), nil
	case string:
		return n, nil
	}
	return "", &ErrUnsupported{Value: v}
}

func decodeNumericText(s string) (any, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("pgsqlite: invalid numeric text %q: %w", s, err)
	}
	return d, nil
}

// encodeNumericBinary/decodeNumericBinary implement PostgreSQL's
// variable-length NUMERIC wire format: a header of
// (ndigits, weight, sign, dscale) int16s followed by ndigits base-10000
// digit groups.
const (
	numericPos    = 0x0000
	numericNeg    = 0x4000
	numericNaN    = 0xC000
	numericDigits = 10000
)

// encodeNumericBinary groups the decimal's unscaled coefficient into
// base-10000 digits, padding the fractional end out to a multiple of 4
// decimal digits so the digit boundaries align on the decimal point.
func encodeNumericBinary(v any) ([]byte, error) {
	var d decimal.Decimal
	switch n := v.(type) {
	case decimal.Decimal:
		d = n
	case string:
		parsed, err := decimal.NewFromString(n)
		if err != nil {
			return nil, err
		}
		d = parsed
	default:
		return nil, &ErrUnsupported{Value: v}
	}

	sign := uint16(numericPos)
	if d.Sign() < 0 {
		sign = numericNeg
		d = d.Neg()
	}

	dscale := int32(0)
	if exp := d.Exponent(); exp < 0 {
		dscale = -exp
	}

	// Pad the coefficient so its fractional part is a multiple of 4
	// digits, then split into base-10000 groups from the least
	// significant end.
	pad := (4 - int(dscale)%4) % 4
	coeff := new(big.Int).Set(d.Coefficient())
	if pad > 0 {
		coeff.Mul(coeff, big.NewInt(int64pow10(pad)))
	}

	var digits []int16
	rem := new(big.Int)
	base := big.NewInt(numericDigits)
	zero := big.NewInt(0)
	work := new(big.Int).Set(coeff)
	for work.Cmp(zero) != 0 {
		work.QuoRem(work, base, rem)
		digits = append([]int16{int16(rem.Int64())}, digits...)
	}
	if len(digits) == 0 {
		digits = []int16{0}
	}

	fracGroups := (int(dscale) + pad) / 4
	weight := int16(len(digits) - fracGroups - 1)

	buf := make([]byte, 8+2*len(digits))
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(digits)))
	binary.BigEndian.PutUint16(buf[2:4], uint16(weight))
	binary.BigEndian.PutUint16(buf[4:6], sign)
	binary.BigEndian.PutUint16(buf[6:8], uint16(dscale))
	for i, dg := range digits {
		binary.BigEndian.PutUint16(buf[8+2*i:10+2*i], uint16(dg))
	}
	return buf, nil
}

func int64pow10(n int) int64 {
	r := int64(1)
	for i := 0; i < n; i++ {
		r *= 10
	}
	return r
}

func decodeNumericBinary(b []byte) (any, error) {
	if len(b) < 8 {
		return nil, fmt.Errorf("pgsqlite: numeric binary too short: %d bytes", len(b))
	}
	ndigits := int(binary.BigEndian.Uint16(b[0:2]))
	weight := int16(binary.BigEndian.Uint16(b[2:4]))
	sign := binary.BigEndian.Uint16(b[4:6])
	dscale := binary.BigEndian.Uint16(b[6:8])
	if sign == numericNaN {
		return decimal.Decimal{}, fmt.Errorf("pgsqlite: NaN numeric not representable")
	}
	if len(b) < 8+2*ndigits {
		return nil, fmt.Errorf("pgsqlite: numeric binary truncated")
	}

	acc := new(big.Int)
	base := big.NewInt(numericDigits)
	for i := 0; i < ndigits; i++ {
		dg := binary.BigEndian.Uint16(b[8+2*i : 10+2*i])
		acc.Mul(acc, base)
		acc.Add(acc, big.NewInt(int64(dg)))
	}

	// acc currently represents ndigits base-10000 groups with an implied
	// decimal point after (weight+1) groups; convert that to a power-of-10
	// exponent and trim to the wire-reported dscale.
	impliedScale := (ndigits - int(weight) - 1) * 4
	d := decimal.NewFromBigInt(acc, int32(-impliedScale))
	if int(dscale) < impliedScale {
		d = d.Round(int32(dscale))
	}
	if sign == numericNeg {
		d = d.Neg()
	}
	return d, nil
}
