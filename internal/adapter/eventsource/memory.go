package eventsource

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/port"
)

const defaultBuffer = 256

// Bus is an in-process change feed. Every subscriber gets its own bounded
// queue; a subscriber that falls behind loses events instead of slowing
// the publisher down.
type Bus struct {
	mu     sync.Mutex
	subs   map[*memorySource]struct{}
	buffer int
	closed bool
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Bus{subs: make(map[*memorySource]struct{}), buffer: buffer}
}

// Publish fans ev out to the current subscribers. It never blocks.
func (b *Bus) Publish(_ context.Context, ev domain.MutationEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return port.ErrSourceClosed
	}
	for s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			log.Warn().Str("consumer", s.consumer).Str("order_id", ev.OrderID).Msg("bus subscriber full, dropping event")
		}
	}
	return nil
}

// Subscribe opens a source that sees events published from now on.
func (b *Bus) Subscribe(consumer string) (port.EventSource, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, port.ErrSourceClosed
	}
	s := &memorySource{
		bus:      b,
		consumer: consumer,
		ch:       make(chan domain.MutationEvent, b.buffer),
		done:     make(chan struct{}),
	}
	b.subs[s] = struct{}{}
	return s, nil
}

// Factory adapts the bus to the supervisor.
func (b *Bus) Factory() port.EventSourceFactory {
	return b.Subscribe
}

// Close ends every open source. Queued events are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		s.closeOnce.Do(func() { close(s.done) })
		delete(b.subs, s)
	}
}

func (b *Bus) remove(s *memorySource) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

type memorySource struct {
	bus       *Bus
	consumer  string
	ch        chan domain.MutationEvent
	done      chan struct{}
	closeOnce sync.Once
}

func (s *memorySource) Next(ctx context.Context) (domain.MutationEvent, error) {
	select {
	case <-ctx.Done():
		return domain.MutationEvent{}, ctx.Err()
	case <-s.done:
		return domain.MutationEvent{}, port.ErrSourceClosed
	case ev := <-s.ch:
		return ev, nil
	}
}

func (s *memorySource) Close() error {
	s.bus.remove(s)
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
