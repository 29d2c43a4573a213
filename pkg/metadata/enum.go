package metadata

import (
	"context"
	"database/sql"
	"fmt"
)

// EnumType is one row of __pgsqlite_enum_types: a user-defined PostgreSQL
// enum, keyed by the synthetic OID the gateway assigned it (spec.md's
// enum rewrite pass needs a stable OID per enum name to answer
// DescribeStatement/DescribePortal RowDescription requests).
type EnumType struct {
	OID       uint32
	Name      string
	Namespace string
}

// EnumValue is one row of __pgsqlite_enum_values. SortOrder is a float so
// ALTER TYPE ... ADD VALUE BEFORE/AFTER can insert a label between two
// existing ones without renumbering the table, mirroring
// original_source/src/metadata/enum_metadata.rs.
type EnumValue struct {
	TypeOID   uint32
	Label     string
	SortOrder float64
}

// CreateEnumType registers a new enum type and its ordered labels inside a
// single transaction. No translator pass calls it; a CREATE TYPE ... AS
// ENUM statement run through the gateway does not register an enum here.
func (s *Store) CreateEnumType(ctx context.Context, oid uint32, name, namespace string, labels []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO __pgsqlite_enum_types (type_oid, type_name, namespace) VALUES (?, ?, ?)`,
		oid, name, namespace); err != nil {
		return fmt.Errorf("pgsqlite: creating enum type %s: %w", name, err)
	}

	for i, label := range labels {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO __pgsqlite_enum_values (type_oid, label, sort_order) VALUES (?, ?, ?)`,
			oid, label, float64(i)); err != nil {
			return fmt.Errorf("pgsqlite: adding enum label %s to %s: %w", label, name, err)
		}
	}
	return tx.Commit()
}

// EnumTypeByName looks up an enum type by its PostgreSQL name, used by the
// translator's cast pass (directly or through the session's EnumCache) to
// resolve CAST(... AS mood).
func (s *Store) EnumTypeByName(ctx context.Context, name string) (EnumType, bool, error) {
	var et EnumType
	err := s.db.QueryRowContext(ctx,
		`SELECT type_oid, type_name, namespace FROM __pgsqlite_enum_types WHERE type_name = ?`, name,
	).Scan(&et.OID, &et.Name, &et.Namespace)
	if err == sql.ErrNoRows {
		return EnumType{}, false, nil
	}
	if err != nil {
		return EnumType{}, false, err
	}
	return et, true, nil
}

// EnumValues returns an enum's labels in declaration order.
func (s *Store) EnumValues(ctx context.Context, typeOID uint32) ([]EnumValue, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type_oid, label, sort_order FROM __pgsqlite_enum_values
		 WHERE type_oid = ? ORDER BY sort_order ASC`, typeOID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EnumValue
	for rows.Next() {
		var ev EnumValue
		if err := rows.Scan(&ev.TypeOID, &ev.Label, &ev.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// AllEnumTypes lists every registered enum. pkg/catalog's pg_type and
// pg_enum virtual tables do not use it; they read the enum tables through
// their own raw-connection queries.
func (s *Store) AllEnumTypes(ctx context.Context) ([]EnumType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type_oid, type_name, namespace FROM __pgsqlite_enum_types`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EnumType
	for rows.Next() {
		var et EnumType
		if err := rows.Scan(&et.OID, &et.Name, &et.Namespace); err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	return out, rows.Err()
}

// BindEnumColumn records that a table column's declared type is a
// particular enum, so the type system bridge can route its OID through
// the enum codec rather than TEXT.
func (s *Store) BindEnumColumn(ctx context.Context, table, column string, typeOID uint32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO __pgsqlite_enum_usage (table_name, column_name, type_oid) VALUES (?, ?, ?)
		ON CONFLICT (table_name, column_name) DO UPDATE SET type_oid = excluded.type_oid
	`, table, column, typeOID)
	return err
}

// EnumColumnOID returns the enum type OID bound to a column, if any.
func (s *Store) EnumColumnOID(ctx context.Context, table, column string) (uint32, bool, error) {
	var oid uint32
	err := s.db.QueryRowContext(ctx,
		`SELECT type_oid FROM __pgsqlite_enum_usage WHERE table_name = ? AND column_name = ?`,
		table, column).Scan(&oid)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return oid, true, nil
}
