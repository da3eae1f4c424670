package dialect

import (
	"fmt"
	"strings"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/binder"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/metadata"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

// sqlDialect is the shared implementation of the database/sql dialects.
type sqlDialect struct {
	name        string
	driver      string
	quote       func(string) string
	placeholder func(index int) string
	upsert      func(d *sqlDialect, table string, fields metadata.FieldsMetadata) (string, error)
	array       func(s *schema.Schema, items []any) (any, error)
}

func (d *sqlDialect) Name() string       { return d.name }
func (d *sqlDialect) DriverName() string { return d.driver }

// QuoteIdentifier quotes every dot separated part of name.
func (d *sqlDialect) QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.quote(p)
	}
	return strings.Join(parts, ".")
}

func (d *sqlDialect) quoteAll(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.quote(n)
	}
	return strings.Join(quoted, ", ")
}

func (d *sqlDialect) placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range n {
		ps[i] = d.placeholder(from + i)
	}
	return strings.Join(ps, ", ")
}

// assignments renders "col = ?" pairs joined by sep, numbering from index.
func (d *sqlDialect) assignments(names []string, index int, sep string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = d.quote(n) + " = " + d.placeholder(index+i)
	}
	return strings.Join(parts, sep)
}

func columns(fields metadata.FieldsMetadata) []string {
	cols := make([]string, 0, len(fields.KeyFieldNames)+len(fields.NonKeyFieldNames))
	cols = append(cols, fields.KeyFieldNames...)
	return append(cols, fields.NonKeyFieldNames...)
}

func (d *sqlDialect) InsertStatement(table string, fields metadata.FieldsMetadata) (string, error) {
	cols := columns(fields)
	if len(cols) == 0 {
		return "", fmt.Errorf("%w: insert into %s without columns", ErrUnsupportedStatement, table)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.QuoteIdentifier(table), d.quoteAll(cols), d.placeholders(1, len(cols))), nil
}

func (d *sqlDialect) UpsertStatement(table string, fields metadata.FieldsMetadata) (string, error) {
	if len(fields.KeyFieldNames) == 0 {
		return "", fmt.Errorf("%w: upsert into %s requires key fields", ErrUnsupportedStatement, table)
	}
	return d.upsert(d, table, fields)
}

func (d *sqlDialect) UpdateStatement(table string, fields metadata.FieldsMetadata) (string, error) {
	if len(fields.KeyFieldNames) == 0 || len(fields.NonKeyFieldNames) == 0 {
		return "", fmt.Errorf("%w: update of %s requires key and non-key fields", ErrUnsupportedStatement, table)
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		d.QuoteIdentifier(table),
		d.assignments(fields.NonKeyFieldNames, 1, ", "),
		d.assignments(fields.KeyFieldNames, 1+len(fields.NonKeyFieldNames), " AND ")), nil
}

func (d *sqlDialect) DeleteStatement(table string, fields metadata.FieldsMetadata) (string, error) {
	if len(fields.KeyFieldNames) == 0 {
		return "", fmt.Errorf("%w: delete from %s requires key fields", ErrUnsupportedStatement, table)
	}
	return fmt.Sprintf("DELETE FROM %s WHERE %s",
		d.QuoteIdentifier(table), d.assignments(fields.KeyFieldNames, 1, " AND ")), nil
}

// onConflictUpsert renders the postgres/sqlite "ON CONFLICT" upsert.
func onConflictUpsert(d *sqlDialect, table string, fields metadata.FieldsMetadata) (string, error) {
	insert, err := d.InsertStatement(table, fields)
	if err != nil {
		return "", err
	}

	if len(fields.NonKeyFieldNames) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", insert, d.quoteAll(fields.KeyFieldNames)), nil
	}

	updates := make([]string, len(fields.NonKeyFieldNames))
	for i, n := range fields.NonKeyFieldNames {
		updates[i] = d.quote(n) + " = EXCLUDED." + d.quote(n)
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s",
		insert, d.quoteAll(fields.KeyFieldNames), strings.Join(updates, ", ")), nil
}

func (d *sqlDialect) BindField(stmt binder.Statement, index int, s *schema.Schema, value any) error {
	v, err := d.convert(s, value)
	if err != nil {
		return fmt.Errorf("%s: placeholder %d: %w", d.name, index, err)
	}
	return stmt.SetParam(index, v) //nolint:wrapcheck // statement errors pass through
}

func (d *sqlDialect) convert(s *schema.Schema, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	v, handled, err := convertLogical(s, value, false)
	if handled {
		return v, err
	}

	switch s.Type {
	case schema.TypeArray:
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %T for %s", ErrUnsupportedValue, value, s)
		}
		return d.array(s, items)
	case schema.TypeMap, schema.TypeStruct:
		return nil, fmt.Errorf("%w: %s values cannot be bound", ErrUnsupportedValue, s.Type)
	default:
		return value, nil
	}
}
