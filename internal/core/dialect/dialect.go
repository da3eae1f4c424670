package dialect

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/idiotech/kafka-connect-jdbc/internal/config"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/binder"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/metadata"
)

var (
	ErrUnknownDialect       = errors.New("unknown dialect")
	ErrUnsupportedStatement = errors.New("unsupported statement")
	ErrUnsupportedValue     = errors.New("unsupported value")
)

// Dialect renders statements for a database and encodes values into their
// placeholders. Placeholder order of every statement matches the binder
// layout for the same write mode.
type Dialect interface {
	binder.Encoder

	Name() string
	// DriverName is the database/sql driver, or "clickhouse" for the native client.
	DriverName() string
	QuoteIdentifier(name string) string

	InsertStatement(table string, fields metadata.FieldsMetadata) (string, error)
	UpsertStatement(table string, fields metadata.FieldsMetadata) (string, error)
	UpdateStatement(table string, fields metadata.FieldsMetadata) (string, error)
	DeleteStatement(table string, fields metadata.FieldsMetadata) (string, error)
}

//nolint:gochecknoglobals // dialect registry
var registry = map[string]func() Dialect{
	"postgres":   Postgres,
	"mysql":      MySQL,
	"sqlite":     SQLite,
	"clickhouse": ClickHouse,
}

func ForName(name string) (Dialect, error) {
	newDialect, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownDialect, name, strings.Join(Names(), ", "))
	}
	return newDialect(), nil
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StatementFor returns the write statement used for non-delete records.
func StatementFor(d Dialect, mode config.InsertMode, table string, fields metadata.FieldsMetadata) (string, error) {
	switch mode {
	case config.InsertModeInsert:
		return d.InsertStatement(table, fields)
	case config.InsertModeUpsert:
		return d.UpsertStatement(table, fields)
	case config.InsertModeUpdate:
		return d.UpdateStatement(table, fields)
	default:
		return "", fmt.Errorf("%w: insert mode %s", ErrUnsupportedStatement, mode)
	}
}
