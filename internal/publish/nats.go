package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/strefethen/anthem-hub-go/internal/events"
)

// natsConn is the subset of *nats.Conn the publisher uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes each envelope to <prefix>.<device>.<type> and to
// <prefix>.all.
type NATSPublisher struct {
	conn   natsConn
	prefix string
	logger *log.Logger
}

// ConnectNATS dials the server at url and keeps reconnecting in the
// background for the life of the hub.
func ConnectNATS(url, prefix string, logger *log.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = log.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("anthem-hub"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Printf("NATS: Disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Printf("NATS: Reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	logger.Printf("NATS: Connected to %s", conn.ConnectedUrl())
	return NewNATSPublisher(conn, prefix, logger), nil
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn natsConn, prefix string, logger *log.Logger) *NATSPublisher {
	if logger == nil {
		logger = log.Default()
	}
	if prefix == "" {
		prefix = "anthem"
	}
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

// Subject returns the per-device subject for an envelope.
func (p *NATSPublisher) Subject(env events.Envelope) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, subjectToken(env.DeviceID), env.Type)
}

func (p *NATSPublisher) Publish(_ context.Context, env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := p.conn.Publish(p.Subject(env), data); err != nil {
		return fmt.Errorf("publish %s: %w", p.Subject(env), err)
	}
	if err := p.conn.Publish(p.prefix+".all", data); err != nil {
		return fmt.Errorf("publish %s.all: %w", p.prefix, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// subjectToken keeps device ids from introducing extra subject levels or
// wildcards.
func subjectToken(id string) string {
	return strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(id)
}
