package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/idiotech/kafka-connect-jdbc/internal/core/record"
)

// Headers carrying the record key envelope and the logical topic.
const (
	KeyHeader   = "Record-Key"
	TopicHeader = "Record-Topic"
)

type ConsumerConfig struct {
	NatsURL        string `json:"url"`
	NatsStream     string `json:"stream"`
	NatsConsumer   string `json:"consumer"`
	NatsSubject    string `json:"subject"`
	AckWaitSeconds int64  `json:"ack_wait" default:"60"`
}

func NewConsumer(ctx context.Context, js jetstream.JetStream, cfg ConsumerConfig) (jetstream.Consumer, error) {
	stream, err := js.Stream(ctx, cfg.NatsStream)
	if err != nil {
		return nil, fmt.Errorf("get stream: %w", err)
	}

	var filter string
	if len(cfg.NatsSubject) > 0 {
		filter = cfg.NatsStream + "." + cfg.NatsSubject
	}

	ackWait := time.Duration(cfg.AckWaitSeconds) * time.Second
	if ackWait == 0 {
		ackWait = 60 * time.Second
	}

	//nolint:exhaustruct // optional config
	consumer, err := stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Name:          cfg.NatsConsumer,
		Durable:       cfg.NatsConsumer,
		AckWait:       ackWait,
		AckPolicy:     jetstream.AckAllPolicy,
		MaxAckPending: -1,

		FilterSubject: filter,
	})
	if err != nil {
		return nil, fmt.Errorf("get or create consumer: %w", err)
	}

	return consumer, nil
}

// NATSSource reads records from a durable JetStream consumer. The record
// offset is the stream sequence and the partition is always 0.
type NATSSource struct {
	conn     *NATSConn
	consumer jetstream.Consumer
	maxWait  time.Duration
}

func NewNATSSource(ctx context.Context, cfg ConsumerConfig, maxWait time.Duration, log *slog.Logger) (*NATSSource, error) {
	nc, err := ConnectNATS(cfg.NatsURL, log)
	if err != nil {
		return nil, err
	}

	consumer, err := NewConsumer(ctx, nc.JetStream(), cfg)
	if err != nil {
		_ = nc.Close()
		return nil, err
	}

	return &NATSSource{
		conn:     nc,
		consumer: consumer,
		maxWait:  maxWait,
	}, nil
}

// NewNATSSourceFromConsumer wraps an existing consumer; Close is a no-op.
func NewNATSSourceFromConsumer(consumer jetstream.Consumer, maxWait time.Duration) *NATSSource {
	return &NATSSource{consumer: consumer, maxWait: maxWait}
}

func (s *NATSSource) Fetch(_ context.Context, maxMessages int) ([]Message, error) {
	batch, err := s.consumer.Fetch(maxMessages, jetstream.FetchMaxWait(s.maxWait))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	msgs := make([]Message, 0, maxMessages)
	for msg := range batch.Messages() {
		rec, err := decodeNATS(msg)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{Record: rec, native: msg})
	}

	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return msgs, nil
}

func decodeNATS(msg jetstream.Msg) (record.Record, error) {
	mdata, err := msg.Metadata()
	if err != nil {
		return record.Record{}, fmt.Errorf("failed to get message metadata: %w", err)
	}

	topic := msg.Subject()
	var key []byte
	if h := msg.Headers(); h != nil {
		if t := h.Get(TopicHeader); t != "" {
			topic = t
		}
		key = []byte(h.Get(KeyHeader))
	}

	return record.Decode(topic, 0, int64(mdata.Sequence.Stream), key, msg.Data()) //nolint:gosec // stream sequences fit int64
}

// Commit acks the last message; the consumer uses the ack-all policy.
func (s *NATSSource) Commit(_ context.Context, msgs []Message) error {
	if len(msgs) == 0 {
		return nil
	}

	msg, ok := msgs[len(msgs)-1].native.(jetstream.Msg)
	if !ok {
		return fmt.Errorf("message %s was not read from NATS", msgs[len(msgs)-1].Record)
	}

	if err := msg.Ack(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

func (s *NATSSource) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
