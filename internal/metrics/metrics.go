package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	EventsReceived        *prometheus.CounterVec
	EventsDropped         *prometheus.CounterVec
	NotificationsSent     *prometheus.CounterVec
	NotificationsDenied   prometheus.Counter
	NotificationsOverflow prometheus.Counter
	WatcherRestarts       *prometheus.CounterVec
	Connections           prometheus.Gauge
	CacheRequests         *prometheus.CounterVec
	ResolveSec            *prometheus.HistogramVec
	Subscriptions         prometheus.GaugeFunc
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	received := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orders_events_received_total"}, []string{"watcher", "kind"})
	dropped := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orders_events_dropped_total"}, []string{"watcher", "reason"})
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orders_notifications_sent_total"}, []string{"event"})
	denied := prometheus.NewCounter(prometheus.CounterOpts{Name: "orders_notifications_denied_total"})
	overflow := prometheus.NewCounter(prometheus.CounterOpts{Name: "orders_notifications_overflow_total"})
	restarts := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orders_watcher_restarts_total"}, []string{"watcher"})
	conns := prometheus.NewGauge(prometheus.GaugeOpts{Name: "orders_ws_connections"})
	cacheReq := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orders_cache_requests_total"}, []string{"result"})
	resolve := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orders_resolve_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"view"})

	r.MustRegister(received, dropped, sent, denied, overflow, restarts, conns, cacheReq, resolve)
	return &Registry{
		reg:                   r,
		EventsReceived:        received,
		EventsDropped:         dropped,
		NotificationsSent:     sent,
		NotificationsDenied:   denied,
		NotificationsOverflow: overflow,
		WatcherRestarts:       restarts,
		Connections:           conns,
		CacheRequests:         cacheReq,
		ResolveSec:            resolve,
	}
}

// TrackSubscriptions exports count as orders_subscriptions. Call it once.
func (r *Registry) TrackSubscriptions(count func() int) {
	r.Subscriptions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "orders_subscriptions",
		Help: "Connections holding at least one interest.",
	}, func() float64 { return float64(count()) })
	r.reg.MustRegister(r.Subscriptions)
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
