package service

import (
	"context"

	"github.com/rl1809/order-realtime/internal/core/domain"
	"github.com/rl1809/order-realtime/internal/metrics"
	"github.com/rl1809/order-realtime/internal/port"
)

const InsertWatcherName = "order-insert-watcher"

type listingQuery struct {
	page   int
	search string
}

// InsertWatcher recomputes every subscribed order listing when a new order
// lands. Listing subscribers are admins checked upstream, so there is no
// per-connection authorization.
type InsertWatcher struct {
	watcherBase
	registry *SubscriptionRegistry
	resolver *OrderViewResolver
	out      port.Broadcaster
}

func NewInsertWatcher(registry *SubscriptionRegistry, resolver *OrderViewResolver, out port.Broadcaster, m *metrics.Registry) *InsertWatcher {
	w := &InsertWatcher{
		registry: registry,
		resolver: resolver,
		out:      out,
	}
	w.setup(InsertWatcherName, m)
	return w
}

func (w *InsertWatcher) Run(ctx context.Context, src port.EventSource) error {
	return w.loop(ctx, src, w.handle)
}

func (w *InsertWatcher) handle(ctx context.Context, ev domain.MutationEvent) {
	if ev.Kind != domain.EventInsert {
		return
	}

	interests := w.registry.AllListingInterests()
	if len(interests) == 0 {
		w.drop("no_interest")
		return
	}

	// Connections looking at the same page and search share one query.
	var order []listingQuery
	groups := make(map[listingQuery][]string)
	for _, in := range interests {
		q := listingQuery{page: in.Page, search: in.SearchTerm}
		if _, ok := groups[q]; !ok {
			order = append(order, q)
		}
		groups[q] = append(groups[q], in.ConnID)
	}

	w.setState(StateResolving)
	for _, q := range order {
		listing, err := w.resolver.ResolveListing(ctx, q.page, q.search)
		if err != nil {
			w.drop("store_error")
			w.log.Error().Err(err).Int("page", q.page).Str("search", q.search).Str("order_id", ev.OrderID).Msg("resolve listing failed")
			continue
		}

		w.setState(StateDispatching)
		for _, connID := range groups[q] {
			if err := w.out.Emit(connID, EventOrders, listing); err != nil {
				w.log.Warn().Err(err).Str("conn_id", connID).Msg("emit failed")
				continue
			}
			w.metrics.NotificationsSent.WithLabelValues(EventOrders).Inc()
		}
		w.setState(StateResolving)
	}
}
