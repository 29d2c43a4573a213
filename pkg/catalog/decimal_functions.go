package catalog

import (
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// registerDecimalFunctions wires shopspring/decimal-backed arithmetic into
// SQLite, grounded on ha1tch-tgpiler's use of the same library for
// NUMERIC-shaped arithmetic. The Translator Pipeline's decimal pass
// rewrites NUMERIC-typed expressions to call these instead of SQLite's
// native floating-point +/-/* /, which would silently lose precision.
func registerDecimalFunctions(conn *sqlite3.SQLiteConn) error {
	fns := map[string]any{
		"decimal_add":       decimalAdd,
		"decimal_sub":       decimalSub,
		"decimal_mul":       decimalMul,
		"decimal_div":       decimalDiv,
		"decimal_cmp":       decimalCmp,
		"decimal_from_text": decimalFromText,
	}
	for name, fn := range fns {
		if err := conn.RegisterFunc(name, fn, true); err != nil {
			return fmt.Errorf("pgsqlite: registering %s(): %w", name, err)
		}
	}
	return nil
}

func parseDecimalArg(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func decimalAdd(a, b string) (string, error) {
	da, err := parseDecimalArg(a)
	if err != nil {
		return "", err
	}
	db, err := parseDecimalArg(b)
	if err != nil {
		return "", err
	}
	return da.Add(db).String(), nil
}

func decimalSub(a, b string) (string, error) {
	da, err := parseDecimalArg(a)
	if err != nil {
		return "", err
	}
	db, err := parseDecimalArg(b)
	if err != nil {
		return "", err
	}
	return da.Sub(db).String(), nil
}

func decimalMul(a, b string) (string, error) {
	da, err := parseDecimalArg(a)
	if err != nil {
		return "", err
	}
	db, err := parseDecimalArg(b)
	if err != nil {
		return "", err
	}
	return da.Mul(db).String(), nil
}

func decimalDiv(a, b string) (string, error) {
	da, err := parseDecimalArg(a)
	if err != nil {
		return "", err
	}
	db, err := parseDecimalArg(b)
	if err != nil {
		return "", err
	}
	if db.IsZero() {
		return "", fmt.Errorf("pgsqlite: division by zero")
	}
	return da.DivRound(db, 16).String(), nil
}

func decimalCmp(a, b string) (int, error) {
	da, err := parseDecimalArg(a)
	if err != nil {
		return 0, err
	}
	db, err := parseDecimalArg(b)
	if err != nil {
		return 0, err
	}
	return da.Cmp(db), nil
}

func decimalFromText(s string) (string, error) {
	d, err := parseDecimalArg(s)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}
