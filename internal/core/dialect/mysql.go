package dialect

import (
	"fmt"
	"strings"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/metadata"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

// MySQL binds enum-set arrays as the comma separated SET literal.
func MySQL() Dialect {
	return &sqlDialect{
		name:   "mysql",
		driver: "mysql",
		quote: func(name string) string {
			return "`" + strings.ReplaceAll(name, "`", "``") + "`"
		},
		placeholder: func(int) string { return "?" },
		upsert:      onDuplicateKeyUpsert,
		array: func(s *schema.Schema, items []any) (any, error) {
			if !s.IsEnumSet() {
				return nil, fmt.Errorf("%w: mysql binds only enum-set arrays", ErrUnsupportedValue)
			}
			values, err := typedSlice(s, items)
			if err != nil {
				return nil, err
			}
			strs, ok := values.([]string)
			if !ok {
				return nil, fmt.Errorf("%w: enum-set of %s", ErrUnsupportedValue, s.ValueSchema.Type)
			}
			return strings.Join(strs, ","), nil
		},
	}
}

func onDuplicateKeyUpsert(d *sqlDialect, table string, fields metadata.FieldsMetadata) (string, error) {
	insert, err := d.InsertStatement(table, fields)
	if err != nil {
		return "", err
	}

	// With no non-key columns a no-op assignment keeps the statement valid.
	updateCols := fields.NonKeyFieldNames
	if len(updateCols) == 0 {
		updateCols = fields.KeyFieldNames
	}

	updates := make([]string, len(updateCols))
	for i, n := range updateCols {
		updates[i] = d.quote(n) + " = VALUES(" + d.quote(n) + ")"
	}
	return insert + " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", "), nil
}
