// Package publish forwards receiver events to optional external sinks:
// NATS subjects and a Redis state shadow.
package publish

import (
	"context"

	"github.com/strefethen/anthem-hub-go/internal/events"
)

// Sink receives every envelope produced by a receiver.
type Sink interface {
	Publish(ctx context.Context, env events.Envelope) error
	Close() error
}
