package stream

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const natsReconnectWait = 2 * time.Second

// NATSConn is a JetStream enabled connection that reconnects forever and
// drains on close so in-flight acks are delivered.
type NATSConn struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func ConnectNATS(url string, log *slog.Logger) (*NATSConn, error) {
	nc, err := nats.Connect(url,
		nats.Name("jdbc-sink"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS connection lost", slog.Any("error", err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("NATS connection restored", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to connect to JetStream: %w", err)
	}

	return &NATSConn{
		nc: nc,
		js: js,
	}, nil
}

func (c *NATSConn) JetStream() jetstream.JetStream {
	return c.js
}

func (c *NATSConn) Close() error {
	if err := c.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}
	return nil
}
