package dialect

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

// SQLite uses the modernc.org/sqlite driver. Arrays are stored as JSON text.
func SQLite() Dialect {
	return &sqlDialect{
		name:   "sqlite",
		driver: "sqlite",
		quote: func(name string) string {
			return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
		},
		placeholder: func(int) string { return "?" },
		upsert:      onConflictUpsert,
		array: func(s *schema.Schema, items []any) (any, error) {
			typed, err := typedSlice(s, items)
			if err != nil {
				return nil, err
			}
			b, err := json.Marshal(typed)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnsupportedValue, err)
			}
			return string(b), nil
		},
	}
}
