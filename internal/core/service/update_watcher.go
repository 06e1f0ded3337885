package service

import (
	"context"
	"errors"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/metrics"
	"github.com/rl1809/order-realtime/internal/port"
)

const UpdateWatcherName = "order-update-watcher"

// UpdateWatcher pushes the fresh view of an updated order to every connection
// watching it, provided the subscriber owns the order or is an admin.
type UpdateWatcher struct {
	watcherBase
	registry *SubscriptionRegistry
	resolver *OrderViewResolver
	users    port.UserRepository
	out      port.Broadcaster
}

func NewUpdateWatcher(registry *SubscriptionRegistry, resolver *OrderViewResolver, users port.UserRepository, out port.Broadcaster, m *metrics.Registry) *UpdateWatcher {
	w := &UpdateWatcher{
		registry: registry,
		resolver: resolver,
		users:    users,
		out:      out,
	}
	w.setup(UpdateWatcherName, m)
	return w
}

func (w *UpdateWatcher) Run(ctx context.Context, src port.EventSource) error {
	return w.loop(ctx, src, w.handle)
}

func (w *UpdateWatcher) handle(ctx context.Context, ev domain.MutationEvent) {
	if ev.Kind != domain.EventUpdate {
		return
	}

	// Nobody watching means nothing to do; the event is not kept.
	matches := w.registry.InterestsMatching(ev.OrderID)
	if len(matches) == 0 {
		w.drop("no_interest")
		return
	}

	w.setState(StateResolving)
	view, err := w.resolver.ResolveOrder(ctx, ev.OrderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			w.drop("not_found")
		} else {
			w.drop("store_error")
		}
		w.log.Error().Err(err).Str("order_id", ev.OrderID).Msg("resolve order failed, event dropped")
		return
	}

	w.setState(StateAuthorizing)
	access := newAccessChecker(w.users)
	recipients := make([]string, 0, len(matches))
	for _, m := range matches {
		ok, err := access.canView(ctx, m.SubscriberID, view.UserID)
		if err != nil {
			w.log.Error().Err(err).Str("order_id", ev.OrderID).Str("conn_id", m.ConnID).Msg("authorize failed, recipient skipped")
			continue
		}
		if !ok {
			w.metrics.NotificationsDenied.Inc()
			continue
		}
		recipients = append(recipients, m.ConnID)
	}

	w.setState(StateDispatching)
	for _, connID := range recipients {
		if err := w.out.Emit(connID, EventOrderUpdated, view); err != nil {
			w.log.Warn().Err(err).Str("conn_id", connID).Str("order_id", ev.OrderID).Msg("emit failed")
			continue
		}
		w.metrics.NotificationsSent.WithLabelValues(EventOrderUpdated).Inc()
	}
}
