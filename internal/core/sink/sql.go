package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// database/sql drivers for the SQL dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

var (
	ErrInvalidParamIndex = errors.New("invalid parameter index")
	ErrParamCount        = errors.New("parameter count mismatch")
)

type SQLConnector struct {
	db *sql.DB
}

func NewSQLConnector(ctx context.Context, driverName, dsn string) (*SQLConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	return &SQLConnector{db: db}, nil
}

// NewSQLConnectorFromDB wraps an already opened database.
func NewSQLConnectorFromDB(db *sql.DB) *SQLConnector {
	return &SQLConnector{db: db}
}

func (c *SQLConnector) Begin(ctx context.Context) (Session, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &sqlSession{tx: tx}, nil
}

func (c *SQLConnector) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (c *SQLConnector) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

type sqlSession struct {
	tx *sql.Tx
}

func (s *sqlSession) Prepare(ctx context.Context, query string) (PreparedStatement, error) {
	stmt, err := s.tx.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	return &SQLStatement{stmt: stmt}, nil
}

func (s *sqlSession) Commit() error {
	if err := s.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (s *sqlSession) Rollback() error {
	if err := s.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback: %w", err)
	}
	return nil
}

// SQLStatement buffers rows for a database/sql prepared statement and runs
// them one by one on ExecuteBatch.
type SQLStatement struct {
	stmt   *sql.Stmt
	params []any
	rows   [][]any
}

func (s *SQLStatement) SetParam(index int, value any) error {
	if index < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidParamIndex, index)
	}
	for len(s.params) < index {
		s.params = append(s.params, nil)
	}
	s.params[index-1] = value
	return nil
}

func (s *SQLStatement) AddBatch() error {
	if len(s.rows) > 0 && len(s.rows[0]) != len(s.params) {
		return fmt.Errorf("%w: row has %d parameters, batch has %d", ErrParamCount, len(s.params), len(s.rows[0]))
	}
	s.rows = append(s.rows, s.params)
	s.params = nil
	return nil
}

// Size returns the number of pending rows.
func (s *SQLStatement) Size() int {
	return len(s.rows)
}

func (s *SQLStatement) ExecuteBatch(ctx context.Context) (int64, error) {
	var total int64
	for i, row := range s.rows {
		res, err := s.stmt.ExecContext(ctx, row...)
		if err != nil {
			return total, fmt.Errorf("failed to execute batch row %d: %w", i, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			n = 1
		}
		total += n
	}
	s.rows = nil
	return total, nil
}

func (s *SQLStatement) Close() error {
	if err := s.stmt.Close(); err != nil {
		return fmt.Errorf("failed to close statement: %w", err)
	}
	return nil
}
