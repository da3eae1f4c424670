package dialect

import (
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
)

// Postgres uses the pgx database/sql driver, $n placeholders and
// INSERT .. ON CONFLICT upserts. Arrays are bound as postgres arrays.
func Postgres() Dialect {
	return &sqlDialect{
		name:   "postgres",
		driver: "pgx",
		quote: func(name string) string {
			return pgx.Identifier{name}.Sanitize()
		},
		placeholder: func(index int) string {
			return "$" + strconv.Itoa(index)
		},
		upsert: onConflictUpsert,
		array: func(s *schema.Schema, items []any) (any, error) {
			typed, err := typedSlice(s, items)
			if err != nil {
				return nil, err
			}
			return pq.Array(typed), nil
		},
	}
}
