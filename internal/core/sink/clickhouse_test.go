package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/ClickHouse/clickhouse-go/v2/lib/column"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/idiotech/kafka-connect-jdbc/internal/config"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/dialect"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/record"
	"github.com/idiotech/kafka-connect-jdbc/tests/testutils"
)

// Mock for driver.Batch
type MockBatch struct {
	mock.Mock
	sent bool
}

func (m *MockBatch) Abort() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockBatch) Append(v ...any) error {
	args := m.Called(v)
	return args.Error(0)
}

func (m *MockBatch) AppendStruct(v any) error {
	args := m.Called(v)
	return args.Error(0)
}

func (m *MockBatch) Column(int) driver.BatchColumn {
	return nil
}

func (m *MockBatch) Flush() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockBatch) Send() error {
	args := m.Called()
	if args.Error(0) == nil {
		m.sent = true
	}
	return args.Error(0)
}

func (m *MockBatch) IsSent() bool {
	return m.sent
}

func (m *MockBatch) Rows() int {
	return 0
}

func (m *MockBatch) Columns() []column.Interface {
	return nil
}

func (m *MockBatch) Close() error {
	return nil
}

// Mock for driver.Conn
type MockConn struct {
	mock.Mock
}

func (m *MockConn) PrepareBatch(ctx context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	args := m.Called(ctx, query)
	return args.Get(0).(driver.Batch), args.Error(1) //nolint:forcetypeassert // mock
}

func (m *MockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockConn) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockConn) AsyncInsert(ctx context.Context, query string, _ bool, data ...any) error {
	args := m.Called(ctx, query, data)
	return args.Error(0)
}

func (m *MockConn) Contributors() []string {
	args := m.Called()
	return args.Get(0).([]string) //nolint:forcetypeassert // mock
}

func (m *MockConn) Exec(context.Context, string, ...any) error {
	return nil
}

func (m *MockConn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	callArgs := m.Called(ctx, query, args)
	if ret := callArgs.Get(0); ret != nil {
		return ret.(driver.Rows), callArgs.Error(1) //nolint:forcetypeassert // mock
	}
	return nil, callArgs.Error(1)
}

func (m *MockConn) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	callArgs := m.Called(ctx, query, args)
	if ret := callArgs.Get(0); ret != nil {
		return ret.(driver.Row) //nolint:forcetypeassert // mock
	}
	return nil
}

func (m *MockConn) Select(ctx context.Context, _ any, query string, args ...any) error {
	callArgs := m.Called(ctx, query, args)
	return callArgs.Error(0)
}

func (m *MockConn) ServerVersion() (*driver.ServerVersion, error) {
	return nil, nil //nolint:nilnil // mock
}

func (m *MockConn) Stats() driver.Stats {
	return driver.Stats{}
}

func TestNewBatch(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockConn := new(MockConn)
		mockBatch := new(MockBatch)
		ctx := context.Background()
		query := "INSERT INTO test (`a`)"

		mockConn.On("PrepareBatch", ctx, query).Return(mockBatch, nil)

		batch, err := NewBatch(ctx, mockConn, query)

		require.NoError(t, err)
		assert.Equal(t, mockBatch, batch.currentBatch)
		assert.Zero(t, batch.Size())
		mockConn.AssertExpectations(t)
	})

	t.Run("PrepareBatchError", func(t *testing.T) {
		mockConn := new(MockConn)
		ctx := context.Background()
		query := "INSERT INTO test (`a`)"

		expectedErr := errors.New("prepare batch error")
		mockConn.On("PrepareBatch", ctx, query).Return(&MockBatch{}, expectedErr)

		batch, err := NewBatch(ctx, mockConn, query)

		assert.Nil(t, batch)
		assert.ErrorIs(t, err, expectedErr)
		mockConn.AssertExpectations(t)
	})
}

func TestBatchAddBatch(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockBatch := new(MockBatch)
		batch := &Batch{currentBatch: mockBatch}

		mockBatch.On("Append", []any{"test", int64(123), nil}).Return(nil)

		require.NoError(t, batch.SetParam(1, "test"))
		require.NoError(t, batch.SetParam(2, int64(123)))
		require.NoError(t, batch.SetParam(3, nil))
		require.NoError(t, batch.AddBatch())

		assert.Equal(t, 1, batch.Size())
		assert.Empty(t, batch.params)
		mockBatch.AssertExpectations(t)
	})

	t.Run("AppendError", func(t *testing.T) {
		mockBatch := new(MockBatch)
		batch := &Batch{currentBatch: mockBatch}

		expectedErr := errors.New("append error")
		mockBatch.On("Append", []any{"test"}).Return(expectedErr)

		require.NoError(t, batch.SetParam(1, "test"))
		err := batch.AddBatch()

		assert.ErrorContains(t, err, "append failed")
		assert.ErrorIs(t, err, expectedErr)
		assert.Zero(t, batch.Size())
	})

	t.Run("AppendPanics", func(t *testing.T) {
		mockBatch := new(MockBatch)
		batch := &Batch{currentBatch: mockBatch}

		mockBatch.On("Append", []any{"test"}).Panic("column type mismatch")

		require.NoError(t, batch.SetParam(1, "test"))
		err := batch.AddBatch()

		assert.ErrorContains(t, err, "column type mismatch")
	})

	t.Run("InvalidIndex", func(t *testing.T) {
		batch := &Batch{currentBatch: new(MockBatch)}

		assert.ErrorIs(t, batch.SetParam(0, "x"), ErrInvalidParamIndex)
	})
}

func TestBatchExecute(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockBatch := new(MockBatch)
		batch := &Batch{currentBatch: mockBatch, rows: 2}

		mockBatch.On("Send").Return(nil)

		n, err := batch.ExecuteBatch(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		require.NoError(t, batch.Close())
		mockBatch.AssertNotCalled(t, "Abort")

		_, err = batch.ExecuteBatch(context.Background())
		assert.ErrorIs(t, err, ErrBatchSent)
		assert.ErrorIs(t, batch.AddBatch(), ErrBatchSent)
	})

	t.Run("SendError", func(t *testing.T) {
		mockBatch := new(MockBatch)
		batch := &Batch{currentBatch: mockBatch, rows: 1}

		expectedErr := errors.New("send error")
		mockBatch.On("Send").Return(expectedErr)
		mockBatch.On("Abort").Return(nil)

		_, err := batch.ExecuteBatch(context.Background())
		require.ErrorIs(t, err, expectedErr)

		require.NoError(t, batch.Close())
		mockBatch.AssertCalled(t, "Abort")
	})

	t.Run("Empty", func(t *testing.T) {
		mockBatch := new(MockBatch)
		batch := &Batch{currentBatch: mockBatch}

		n, err := batch.ExecuteBatch(context.Background())

		require.NoError(t, err)
		assert.Zero(t, n)
		mockBatch.AssertNotCalled(t, "Send")
	})
}

func TestClickHouseConnectorPing(t *testing.T) {
	mockConn := new(MockConn)
	mockConn.On("Ping", mock.Anything).Return(errors.New("refused")).Once()
	mockConn.On("Ping", mock.Anything).Return(nil).Once()

	c := NewClickHouseConnectorFromConn(mockConn)

	require.ErrorContains(t, c.Ping(context.Background()), "refused")
	require.NoError(t, c.Ping(context.Background()))
}

func TestWriterClickHouse(t *testing.T) {
	mockConn := new(MockConn)
	mockBatch := new(MockBatch)
	query := "INSERT INTO `users` (`id`, `name`, `deleted`)"

	mockConn.On("PrepareBatch", mock.Anything, query).Return(mockBatch, nil).Once()
	mockBatch.On("Append", []any{int64(1), "ada", nil}).Return(nil).Once()
	mockBatch.On("Append", []any{int64(2), "bob", nil}).Return(nil).Once()
	mockBatch.On("Send").Return(nil).Once()

	cfg := config.SinkConfig{ConnectionURL: "clickhouse://localhost:9000", Dialect: "clickhouse"}
	cfg.ApplyDefaults()
	w := NewWriter(cfg, dialect.ClickHouse(), NewClickHouseConnectorFromConn(mockConn), testutils.NewTestLogger())

	err := w.Write(context.Background(), []record.Record{userRecord(0, 1, "ada"), userRecord(1, 2, "bob")})

	require.NoError(t, err)
	mockConn.AssertExpectations(t)
	mockBatch.AssertExpectations(t)
}

func TestWriterClickHouseRejectsUpsert(t *testing.T) {
	cfg := config.SinkConfig{
		ConnectionURL:  "clickhouse://localhost:9000",
		Dialect:        "clickhouse",
		InsertMode:     config.InsertModeUpsert,
		PrimaryKeyMode: config.PrimaryKeyRecordKey,
	}
	cfg.ApplyDefaults()
	w := NewWriter(cfg, dialect.ClickHouse(), NewClickHouseConnectorFromConn(new(MockConn)), testutils.NewTestLogger())

	err := w.Write(context.Background(), []record.Record{userRecord(0, 1, "ada")})

	require.ErrorIs(t, err, dialect.ErrUnsupportedStatement)
}
