package translator

import (
	"context"
	"regexp"
	"strings"
)

var fromTablePattern = regexp.MustCompile(`(?i)\bFROM\s+"?([A-Za-z_][\w]*)"?(?:\s+(?:AS\s+)?"?([A-Za-z_][\w]*)"?)?`)

var arithmeticOperand = regexp.MustCompile(`([\w."]+|\$[0-9]+|'(?:[^']|'')*')\s*([+\-*/])\s*([\w."]+|\$[0-9]+|'(?:[^']|'')*')`)

// DecimalPass implements spec.md §4.2 pass 4: when a table named right
// after a FROM keyword has a NUMERIC column, the arithmetic operators
// + - * / over NUMERIC operands are replaced with calls into the
// arbitrary-precision decimal functions pkg/catalog/decimal_functions.go
// registers; comparison operators are not rewritten. This is a
// best-effort textual approximation of the full expression-type resolver
// spec.md describes (table aliases, CTE column types, derived-table
// column types): it identifies NUMERIC columns by name match against the
// metadata store for the first table after each FROM keyword (JOINed or
// comma-listed tables and UPDATE/INSERT targets are not looked up), then
// rewrites arithmetic operators whose operands include one of those
// column names. Non-NUMERIC statements are returned unchanged.
type DecimalPass struct{}

func (DecimalPass) Name() string { return "decimal" }

func (p DecimalPass) Apply(tc *Context, sql string) (string, error) {
	if tc.Store == nil {
		return sql, nil
	}
	numericCols, err := p.numericColumns(tc, sql)
	if err != nil || len(numericCols) == 0 {
		return sql, nil
	}

	return arithmeticOperand.ReplaceAllStringFunc(sql, func(m string) string {
		sub := arithmeticOperand.FindStringSubmatch(m)
		lhs, op, rhs := sub[1], sub[2], sub[3]
		if !numericCols[columnName(lhs)] && !numericCols[columnName(rhs)] {
			return m
		}
		fn := decimalFuncFor(op)
		if fn == "" {
			return m
		}
		return fn + "(" + decimalOperand(lhs, numericCols) + ", " + decimalOperand(rhs, numericCols) + ")"
	}), nil
}

func columnName(operand string) string {
	if idx := strings.LastIndex(operand, "."); idx >= 0 {
		operand = operand[idx+1:]
	}
	return strings.Trim(operand, `"`)
}

func decimalOperand(operand string, numericCols map[string]bool) string {
	if numericCols[columnName(operand)] {
		return operand
	}
	if strings.HasPrefix(operand, "'") || strings.HasPrefix(operand, "$") {
		return "decimal_from_text(CAST(" + operand + " AS TEXT))"
	}
	return "decimal_from_text(CAST(" + operand + " AS TEXT))"
}

func decimalFuncFor(op string) string {
	switch op {
	case "+":
		return "decimal_add"
	case "-":
		return "decimal_sub"
	case "*":
		return "decimal_mul"
	case "/":
		return "decimal_div"
	}
	return ""
}

// numericColumns gathers every NUMERIC-typed column name (unqualified)
// across the first table after each FROM keyword, consulting the metadata
// store and caching nothing beyond the translation cache itself (the
// statement-level cache key already includes the original SQL, so a
// repeated query pays this lookup only once).
func (DecimalPass) numericColumns(tc *Context, sql string) (map[string]bool, error) {
	ctx := tc.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	out := map[string]bool{}
	for _, m := range fromTablePattern.FindAllStringSubmatch(sql, -1) {
		table := m[1]
		cols, err := tc.Store.ColumnTypesForTable(ctx, table)
		if err != nil {
			continue
		}
		for _, c := range cols {
			if strings.EqualFold(c.PgType, "numeric") || strings.EqualFold(c.PgType, "decimal") {
				out[c.ColumnName] = true
			}
		}
	}
	return out, nil
}
