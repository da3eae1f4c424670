package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/idiotech/kafka-connect-jdbc/internal/config"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/binder"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/dialect"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/metadata"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/record"
)

var (
	ErrUnexpectedUpdateCount = errors.New("update count did not sum up to the number of records")
	ErrNoStatement           = errors.New("no statement for record")
)

// BufferedRecords batches the records of one table. Records sharing a
// schema pair are bound through one write statement and one delete
// statement; a schema change flushes the buffer and rebuilds both.
type BufferedRecords struct {
	table   string
	cfg     config.SinkConfig
	dialect dialect.Dialect
	log     *slog.Logger

	schemaPair     *metadata.SchemaPair
	fields         metadata.FieldsMetadata
	writeSQL       string
	deleteSQL      string
	deletesInBatch bool
	records        []record.Record
}

func NewBufferedRecords(table string, cfg config.SinkConfig, d dialect.Dialect, log *slog.Logger) *BufferedRecords {
	return &BufferedRecords{
		table:   table,
		cfg:     cfg,
		dialect: d,
		log:     log.With(slog.String("table", table)),
	}
}

// Add buffers rec and returns the records flushed on the way.
func (b *BufferedRecords) Add(ctx context.Context, sess Session, rec record.Record) ([]record.Record, error) {
	if rec.IsTombstone() && !b.cfg.DeleteEnabled {
		b.log.DebugContext(ctx, "Skipping tombstone, deletes are disabled", slog.String("record", rec.String()))
		return nil, nil
	}

	isDelete := binder.IsDelete(rec, b.cfg.DeleteByField)

	pair := metadata.SchemaPair{KeySchema: rec.KeySchema, ValueSchema: rec.ValueSchema}
	if rec.IsTombstone() && b.schemaPair != nil {
		// Tombstones carry no value schema and keep the current shape.
		pair.ValueSchema = b.schemaPair.ValueSchema
	}

	var flushed []record.Record
	if b.schemaPair == nil || !b.schemaPair.Equal(pair) {
		out, err := b.Flush(ctx, sess)
		if err != nil {
			return nil, err
		}
		flushed = append(flushed, out...)

		if err := b.reshape(pair); err != nil {
			return nil, err
		}
	}

	// Deletes and writes go through different statements; flush on every
	// switch so rows reach the table in record order.
	if len(b.records) > 0 && isDelete != b.deletesInBatch {
		out, err := b.Flush(ctx, sess)
		if err != nil {
			return nil, err
		}
		flushed = append(flushed, out...)
	}
	b.deletesInBatch = isDelete

	b.records = append(b.records, rec)

	if len(b.records) >= b.cfg.BatchSize {
		out, err := b.Flush(ctx, sess)
		if err != nil {
			return nil, err
		}
		flushed = append(flushed, out...)
	}

	return flushed, nil
}

func (b *BufferedRecords) reshape(pair metadata.SchemaPair) error {
	fields, err := metadata.Extract(b.table, b.cfg.PrimaryKeyMode, b.cfg.PrimaryKeyFields, b.cfg.FieldsWhitelist, pair)
	if err != nil {
		return fmt.Errorf("failed to extract fields: %w", err)
	}

	writeSQL := ""
	if pair.ValueSchema != nil {
		writeSQL, err = dialect.StatementFor(b.dialect, b.cfg.InsertMode, b.table, fields)
		if err != nil {
			return fmt.Errorf("failed to build %s statement: %w", b.cfg.InsertMode, err)
		}
	}

	deleteSQL := ""
	if b.cfg.DeleteEnabled || b.cfg.DeleteByField {
		deleteSQL, err = b.dialect.DeleteStatement(b.table, fields)
		if err != nil {
			return fmt.Errorf("failed to build delete statement: %w", err)
		}
	}

	b.schemaPair = &pair
	b.fields = fields
	b.writeSQL = writeSQL
	b.deleteSQL = deleteSQL

	b.log.Debug("Statements rebuilt",
		slog.Any("key_fields", fields.KeyFieldNames),
		slog.Any("non_key_fields", fields.NonKeyFieldNames),
		slog.String("write_sql", writeSQL),
		slog.String("delete_sql", deleteSQL))

	return nil
}

// Flush binds and executes the buffered records. Write rows run before
// delete rows; Add never mixes both in one buffer.
func (b *BufferedRecords) Flush(ctx context.Context, sess Session) (_ []record.Record, err error) {
	if len(b.records) == 0 {
		return nil, nil
	}

	opts := &binder.Options{
		DeleteByField: b.cfg.DeleteByField,
		EnumSets:      b.cfg.EnumSets,
	}

	var (
		writeStmt, deleteStmt     PreparedStatement
		writeBinder, deleteBinder *binder.Binder
		writes, deletes           int
	)
	defer func() {
		for _, stmt := range []PreparedStatement{writeStmt, deleteStmt} {
			if stmt == nil {
				continue
			}
			if cerr := stmt.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	}()

	for _, rec := range b.records {
		if binder.IsDelete(rec, b.cfg.DeleteByField) {
			if deleteBinder == nil {
				deleteStmt, deleteBinder, err = b.prepare(ctx, sess, b.deleteSQL, opts)
				if err != nil {
					return nil, fmt.Errorf("delete of %s: %w", rec, err)
				}
			}
			if err := deleteBinder.Bind(rec); err != nil {
				return nil, fmt.Errorf("failed to bind record %s: %w", rec, err)
			}
			deletes++
			continue
		}

		if writeBinder == nil {
			writeStmt, writeBinder, err = b.prepare(ctx, sess, b.writeSQL, opts)
			if err != nil {
				return nil, fmt.Errorf("write of %s: %w", rec, err)
			}
		}
		if err := writeBinder.Bind(rec); err != nil {
			return nil, fmt.Errorf("failed to bind record %s: %w", rec, err)
		}
		writes++
	}

	if writeStmt != nil {
		n, err := writeStmt.ExecuteBatch(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to execute write batch: %w", err)
		}
		if b.cfg.InsertMode == config.InsertModeInsert && n != int64(writes) {
			return nil, fmt.Errorf("%w: %d rows for %d records", ErrUnexpectedUpdateCount, n, writes)
		}
		if ignored := writeBinder.IgnoredEnumSetOverrides(); ignored > 0 {
			b.log.DebugContext(ctx, "Enum-set columns bound with their declared schema",
				slog.Any("enum_sets", b.cfg.EnumSets),
				slog.Int("bindings", ignored))
		}
	}

	if deleteStmt != nil {
		if _, err := deleteStmt.ExecuteBatch(ctx); err != nil {
			return nil, fmt.Errorf("failed to execute delete batch: %w", err)
		}
	}

	b.log.DebugContext(ctx, "Batch flushed", slog.Int("writes", writes), slog.Int("deletes", deletes))

	flushed := b.records
	b.records = nil

	return flushed, nil
}

func (b *BufferedRecords) prepare(
	ctx context.Context,
	sess Session,
	query string,
	opts *binder.Options,
) (PreparedStatement, *binder.Binder, error) {
	if query == "" {
		return nil, nil, ErrNoStatement
	}

	stmt, err := sess.Prepare(ctx, query)
	if err != nil {
		return nil, nil, err
	}

	return stmt, binder.New(b.dialect, stmt, b.cfg.PrimaryKeyMode, *b.schemaPair, b.fields, b.cfg.InsertMode, opts), nil
}

// Size returns the number of buffered records.
func (b *BufferedRecords) Size() int {
	return len(b.records)
}

// Reset drops the buffered records, keeping the current statements.
func (b *BufferedRecords) Reset() {
	b.records = nil
}
