package dialect

import (
	"fmt"
	"strings"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/binder"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/metadata"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

const ClickHouseDriverName = "clickhouse"

type clickHouse struct{}

// ClickHouse writes through native batches, so it only supports inserts.
// Its statements have no placeholders: every column of the INSERT column
// list is a bind position.
func ClickHouse() Dialect {
	return clickHouse{}
}

func (clickHouse) Name() string       { return "clickhouse" }
func (clickHouse) DriverName() string { return ClickHouseDriverName }

// QuoteIdentifier wraps each part in backticks, escaping existing backticks.
func (clickHouse) QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quoteBackticks(p)
	}
	return strings.Join(parts, ".")
}

func quoteBackticks(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (c clickHouse) InsertStatement(table string, fields metadata.FieldsMetadata) (string, error) {
	cols := columns(fields)
	if len(cols) == 0 {
		return "", fmt.Errorf("%w: insert into %s without columns", ErrUnsupportedStatement, table)
	}

	quoted := make([]string, len(cols))
	for i, n := range cols {
		quoted[i] = quoteBackticks(n)
	}
	return fmt.Sprintf("INSERT INTO %s (%s)", c.QuoteIdentifier(table), strings.Join(quoted, ", ")), nil
}

func (clickHouse) UpsertStatement(table string, _ metadata.FieldsMetadata) (string, error) {
	return "", fmt.Errorf("%w: clickhouse upsert into %s", ErrUnsupportedStatement, table)
}

func (clickHouse) UpdateStatement(table string, _ metadata.FieldsMetadata) (string, error) {
	return "", fmt.Errorf("%w: clickhouse update of %s", ErrUnsupportedStatement, table)
}

func (clickHouse) DeleteStatement(table string, _ metadata.FieldsMetadata) (string, error) {
	return "", fmt.Errorf("%w: clickhouse delete from %s", ErrUnsupportedStatement, table)
}

func (clickHouse) BindField(stmt binder.Statement, index int, s *schema.Schema, value any) error {
	v, err := convertClickHouse(s, value)
	if err != nil {
		return fmt.Errorf("clickhouse: placeholder %d: %w", index, err)
	}
	return stmt.SetParam(index, v) //nolint:wrapcheck // statement errors pass through
}

func convertClickHouse(s *schema.Schema, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	v, handled, err := convertLogical(s, value, true)
	if handled {
		return v, err
	}

	switch s.Type {
	case schema.TypeBytes:
		// ClickHouse String columns hold raw bytes.
		if b, ok := value.([]byte); ok {
			return string(b), nil
		}
		return value, nil
	case schema.TypeArray:
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %T for %s", ErrUnsupportedValue, value, s)
		}
		return nativeSlice(s, items)
	case schema.TypeMap, schema.TypeStruct:
		return nil, fmt.Errorf("%w: %s values cannot be bound", ErrUnsupportedValue, s.Type)
	default:
		return value, nil
	}
}

// nativeSlice keeps the exact integer and float widths, which the native
// protocol requires for Array(IntN) and Array(Float32) columns.
func nativeSlice(s *schema.Schema, items []any) (any, error) {
	if s.ValueSchema == nil {
		return nil, fmt.Errorf("%w: array without element schema", ErrUnsupportedValue)
	}

	switch s.ValueSchema.Type {
	case schema.TypeInt8:
		return collect[int8](items, asType[int8])
	case schema.TypeInt16:
		return collect[int16](items, asType[int16])
	case schema.TypeInt32:
		return collect[int32](items, asType[int32])
	case schema.TypeFloat32:
		return collect[float32](items, asType[float32])
	default:
		return typedSlice(s, items)
	}
}

func asType[T any](v any) (T, bool) {
	t, ok := v.(T)
	return t, ok
}
