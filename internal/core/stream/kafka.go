package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/record"
)

type KafkaConsumerConfig struct {
	Brokers []string `json:"brokers"`
	GroupID string   `json:"group_id"`
	Topics  []string `json:"topics"`
}

// KafkaSource reads records through a consumer group with auto-commit
// disabled; offsets are committed after a successful write.
type KafkaSource struct {
	client *kgo.Client
	log    *slog.Logger
}

func NewKafkaSource(cfg KafkaConsumerConfig, maxWait time.Duration, log *slog.Logger) (*KafkaSource, error) {
	if len(cfg.Brokers) == 0 || len(cfg.Topics) == 0 || cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka source needs brokers, topics and group_id")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxWait(maxWait),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaSource{client: client, log: log}, nil
}

func (s *KafkaSource) Fetch(ctx context.Context, maxMessages int) ([]Message, error) {
	fetches := s.client.PollRecords(ctx, maxMessages)
	if fetches.IsClientClosed() {
		return nil, kgo.ErrClientClosed
	}

	return s.messages(ctx, fetches)
}

// messages decodes the polled records. Partition errors only fail the
// fetch when no partition returned records; otherwise they are logged and
// the failing partitions are polled again on the next fetch.
func (s *KafkaSource) messages(ctx context.Context, fetches kgo.Fetches) ([]Message, error) {
	var fetchErr error
	for _, fe := range fetches.Errors() {
		var dataLoss *kgo.ErrDataLoss
		switch {
		case errors.Is(fe.Err, context.Canceled), errors.Is(fe.Err, context.DeadlineExceeded):
			continue
		case errors.As(fe.Err, &dataLoss):
			s.log.WarnContext(ctx, "Kafka reported data loss",
				slog.String("topic", fe.Topic),
				slog.Int("partition", int(fe.Partition)),
				slog.Any("error", fe.Err))
			continue
		}
		fetchErr = errors.Join(fetchErr, fmt.Errorf("failed to fetch %s/%d: %w", fe.Topic, fe.Partition, fe.Err))
	}

	msgs := make([]Message, 0, fetches.NumRecords())
	var decodeErr error
	fetches.EachRecord(func(r *kgo.Record) {
		if decodeErr != nil {
			return
		}
		rec, err := record.Decode(r.Topic, r.Partition, r.Offset, r.Key, r.Value)
		if err != nil {
			decodeErr = err
			return
		}
		msgs = append(msgs, Message{Record: rec, native: r})
	})
	if decodeErr != nil {
		return nil, decodeErr
	}

	if fetchErr != nil {
		if len(msgs) == 0 {
			return nil, fetchErr
		}
		s.log.WarnContext(ctx, "Partial Kafka fetch", slog.Int("records", len(msgs)), slog.Any("error", fetchErr))
	}

	return msgs, nil
}

func (s *KafkaSource) Commit(ctx context.Context, msgs []Message) error {
	recs := make([]*kgo.Record, 0, len(msgs))
	for _, m := range msgs {
		r, ok := m.native.(*kgo.Record)
		if !ok {
			return fmt.Errorf("message %s was not read from kafka", m.Record)
		}
		recs = append(recs, r)
	}

	if err := s.client.CommitRecords(ctx, recs...); err != nil {
		return fmt.Errorf("failed to commit offsets: %w", err)
	}
	return nil
}

func (s *KafkaSource) Close() error {
	s.client.Close()
	return nil
}
