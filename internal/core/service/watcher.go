package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/metrics"
	"github.com/rl1809/order-realtime/internal/port"
)

type WatcherState int32

const (
	StateIdle WatcherState = iota
	StateListening
	StateResolving
	StateAuthorizing
	StateDispatching
	StateStopped
)

func (s WatcherState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateResolving:
		return "resolving"
	case StateAuthorizing:
		return "authorizing"
	case StateDispatching:
		return "dispatching"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Watcher consumes mutation events until its source fails or ctx ends.
// Run processes events strictly one after another.
type Watcher interface {
	Name() string
	State() WatcherState
	Run(ctx context.Context, src port.EventSource) error
}

type watcherBase struct {
	name    string
	state   atomic.Int32
	metrics *metrics.Registry
	log     zerolog.Logger
}

func (w *watcherBase) setup(name string, m *metrics.Registry) {
	w.name = name
	w.metrics = m
	w.log = log.With().Str("watcher", name).Logger()
}

func (w *watcherBase) Name() string { return w.name }

func (w *watcherBase) State() WatcherState { return WatcherState(w.state.Load()) }

func (w *watcherBase) setState(s WatcherState) { w.state.Store(int32(s)) }

func (w *watcherBase) drop(reason string) {
	w.metrics.EventsDropped.WithLabelValues(w.name, reason).Inc()
}

// loop pulls events from src and hands each to handle. It only returns when
// the source fails or ctx is done, leaving the watcher Stopped.
func (w *watcherBase) loop(ctx context.Context, src port.EventSource, handle func(context.Context, domain.MutationEvent)) error {
	w.setState(StateListening)
	w.log.Info().Msg("watcher listening")
	for {
		ev, err := src.Next(ctx)
		if err != nil {
			w.setState(StateStopped)
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				return ctx.Err()
			}
			return fmt.Errorf("%s: event source: %w", w.name, err)
		}
		w.metrics.EventsReceived.WithLabelValues(w.name, string(ev.Kind)).Inc()
		handle(ctx, ev)
		w.setState(StateListening)
	}
}

// accessChecker decides who may see an order. Admin lookups are memoized for
// the lifetime of the checker, which is one event or one request.
type accessChecker struct {
	users  port.UserRepository
	admins map[string]bool
}

func newAccessChecker(users port.UserRepository) *accessChecker {
	return &accessChecker{users: users, admins: make(map[string]bool)}
}

func (a *accessChecker) canView(ctx context.Context, subscriberID, ownerID string) (bool, error) {
	if subscriberID == "" {
		return false, nil
	}
	if subscriberID == ownerID {
		return true, nil
	}
	if admin, ok := a.admins[subscriberID]; ok {
		return admin, nil
	}
	admin, err := a.users.IsAdmin(ctx, subscriberID)
	if err != nil {
		return false, fmt.Errorf("admin lookup for %s: %w", subscriberID, err)
	}
	a.admins[subscriberID] = admin
	return admin, nil
}
