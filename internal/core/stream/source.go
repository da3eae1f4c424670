package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/idiotech/kafka-connect-jdbc/internal/config"
	"github.com/idiotech/kafka-connect-jdbc/internal/core/record"
)

const (
	KindNATS  = "nats"
	KindKafka = "kafka"

	DefaultFetchMaxWait = time.Second
)

// Message is a decoded record together with the handle used to commit it.
type Message struct {
	Record record.Record
	native any
}

// Source delivers records in arrival order. Commit marks every message up
// to and including the given ones as processed.
type Source interface {
	Fetch(ctx context.Context, maxMessages int) ([]Message, error)
	Commit(ctx context.Context, msgs []Message) error
	Close() error
}

type Config struct {
	Kind         string              `json:"kind"`
	NATS         ConsumerConfig      `json:"nats"`
	Kafka        KafkaConsumerConfig `json:"kafka"`
	FetchMaxWait config.JSONDuration `json:"fetch_max_wait"`
}

func (c Config) fetchMaxWait() time.Duration {
	if c.FetchMaxWait.Duration() > 0 {
		return c.FetchMaxWait.Duration()
	}
	return DefaultFetchMaxWait
}

func NewSource(ctx context.Context, cfg Config, log *slog.Logger) (Source, error) {
	switch cfg.Kind {
	case KindNATS, "":
		log.Info("Connecting NATS source", slog.String("stream", cfg.NATS.NatsStream))
		return NewNATSSource(ctx, cfg.NATS, cfg.fetchMaxWait(), log)
	case KindKafka:
		log.Info("Connecting Kafka source", slog.Any("topics", cfg.Kafka.Topics))
		return NewKafkaSource(cfg.Kafka, cfg.fetchMaxWait(), log)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// Records returns the records carried by msgs.
func Records(msgs []Message) []record.Record {
	recs := make([]record.Record, len(msgs))
	for i, m := range msgs {
		recs[i] = m.Record
	}
	return recs
}
