package port

import (
	"context"
	"errors"

	"github.com/rl1809/order-realtime/internal/core/domain"
)

// ErrSourceClosed is returned by an EventSource that can no longer deliver.
var ErrSourceClosed = errors.New("event source closed")

// EventSource yields mutation events on the order table one at a time.
// Any error from Next other than ctx cancellation is fatal for the source.
type EventSource interface {
	Next(ctx context.Context) (domain.MutationEvent, error)
	Close() error
}

// EventSourceFactory opens a fresh source for a named consumer.
type EventSourceFactory func(consumer string) (EventSource, error)

// EventPublisher announces committed writes on the change feed.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.MutationEvent) error
}

// Broadcaster delivers a named event to one live connection. Delivery is
// fire-and-forget; an unknown connection is not an error.
type Broadcaster interface {
	Emit(connID, event string, payload any) error
}

// HealthReporter receives liveness changes of long-running components.
type HealthReporter interface {
	SetServing(component string, serving bool)
}
