package sink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/binder"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/dialect"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/metadata"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/record"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/schema"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/stream"
)

type RecordWriter interface {
	Write(ctx context.Context, recs []record.Record) error
}

// Importer moves records from a source into the writer. A batch is
// committed on the source only after it was written.
type Importer struct {
	source     stream.Source
	writer     RecordWriter
	batchSize  int
	maxRetries int
	backoff    time.Duration
	log        *slog.Logger
}

func NewImporter(
	source stream.Source,
	writer RecordWriter,
	batchSize, maxRetries int,
	backoff time.Duration,
	log *slog.Logger,
) *Importer {
	return &Importer{
		source:     source,
		writer:     writer,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		backoff:    backoff,
		log:        log,
	}
}

func (i *Importer) Run(ctx context.Context) error {
	i.log.Info("Record import is in progress...")

	for {
		select {
		case <-ctx.Done():
			i.log.Debug("Received stop event")
			return nil
		default:
			err := i.step(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("error on importing records: %w", err)
			}
		}
	}
}

func (i *Importer) step(ctx context.Context) error {
	msgs, err := i.source.Fetch(ctx, i.batchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch records: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	recs := stream.Records(msgs)
	err = retry.Do(
		func() error {
			return i.writer.Write(ctx, recs)
		},
		retry.Context(ctx),
		retry.Attempts(uint(i.maxRetries)+1), //nolint:gosec // validated non-negative
		retry.Delay(i.backoff),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			i.log.Warn("Write failed, retrying",
				slog.Uint64("attempt", uint64(n)+1),
				slog.Int("records", len(recs)),
				slog.Any("error", err))
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to write %d records starting at %s: %w", len(recs), recs[0], err)
	}

	if err := i.source.Commit(ctx, msgs); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	i.log.Debug("Records committed", slog.Int("count", len(msgs)), slog.String("last", recs[len(recs)-1].String()))

	return nil
}

// isRetryable reports false for errors caused by the records themselves.
func isRetryable(err error) bool {
	for _, permanent := range []error{
		binder.ErrUnresolvedField,
		binder.ErrNotStruct,
		binder.ErrMissingSchema,
		dialect.ErrUnsupportedValue,
		dialect.ErrUnsupportedStatement,
		metadata.ErrInvalidFields,
		schema.ErrUnknownField,
		ErrUnexpectedUpdateCount,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
