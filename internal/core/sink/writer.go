package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/idiotech/kafka-connect-jdbc/internal/config"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/dialect"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/record"
)

// Writer writes batches of records, one session per batch and one buffer
// per destination table.
type Writer struct {
	cfg       config.SinkConfig
	dialect   dialect.Dialect
	connector Connector
	log       *slog.Logger
	buffers   map[string]*BufferedRecords
}

func NewWriter(cfg config.SinkConfig, d dialect.Dialect, connector Connector, log *slog.Logger) *Writer {
	return &Writer{
		cfg:       cfg,
		dialect:   d,
		connector: connector,
		log:       log,
		buffers:   make(map[string]*BufferedRecords),
	}
}

// Write stores recs and commits. On error nothing stays buffered, so the
// same records can be written again.
func (w *Writer) Write(ctx context.Context, recs []record.Record) (err error) {
	sess, err := w.connector.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin session: %w", err)
	}

	defer func() {
		if err == nil {
			return
		}
		for _, buf := range w.buffers {
			buf.Reset()
		}
		if rerr := sess.Rollback(); rerr != nil {
			err = errors.Join(err, rerr)
		}
	}()

	for _, rec := range recs {
		table := w.cfg.TableName(rec.Topic)
		if _, err := w.buffer(table).Add(ctx, sess, rec); err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
	}

	for table, buf := range w.buffers {
		if _, err := buf.Flush(ctx, sess); err != nil {
			return fmt.Errorf("table %s: %w", table, err)
		}
	}

	if err := sess.Commit(); err != nil {
		return err
	}

	w.log.DebugContext(ctx, "Records written", slog.Int("count", len(recs)))

	return nil
}

func (w *Writer) buffer(table string) *BufferedRecords {
	buf, ok := w.buffers[table]
	if !ok {
		buf = NewBufferedRecords(table, w.cfg, w.dialect, w.log)
		w.buffers[table] = buf
	}
	return buf
}

func (w *Writer) Ping(ctx context.Context) error {
	return w.connector.Ping(ctx) //nolint:wrapcheck // connector errors are already wrapped
}

func (w *Writer) Close() error {
	return w.connector.Close() //nolint:wrapcheck // connector errors are already wrapped
}
