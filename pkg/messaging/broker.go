package messaging

import (
	"context"
)

// Broker is the transport-agnostic pub/sub interface behind the real-time
// sync channel. Implementations must deliver messages on one channel in the
// order they were published.
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Healthy(ctx context.Context) error
	Close() error
}
