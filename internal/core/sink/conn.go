package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/binder"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/dialect"
)

// Connector opens write sessions against the destination database.
type Connector interface {
	Begin(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
	Close() error
}

// Session groups the statements of one write. SQL sessions are transactions.
type Session interface {
	Prepare(ctx context.Context, query string) (PreparedStatement, error)
	Commit() error
	Rollback() error
}

// PreparedStatement collects bound rows and executes them as one batch.
type PreparedStatement interface {
	binder.Statement
	// ExecuteBatch runs the pending rows and returns the affected row count.
	ExecuteBatch(ctx context.Context) (int64, error)
	Close() error
}

// NewConnector opens the connector matching the dialect driver.
func NewConnector(ctx context.Context, d dialect.Dialect, url string, log *slog.Logger) (Connector, error) {
	log.Info("Opening sink connection", slog.String("dialect", d.Name()))

	if d.DriverName() == dialect.ClickHouseDriverName {
		conn, err := NewClickHouseConnector(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to open clickhouse connector: %w", err)
		}
		return conn, nil
	}

	conn, err := NewSQLConnector(ctx, d.DriverName(), url)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connector: %w", d.Name(), err)
	}
	return conn, nil
}
