// Package metrics holds the Prometheus instrumentation for the status hub.
//
// Every [Metrics] owns a private registry so several hubs can coexist in one
// process (and in tests) without duplicate-registration panics. All recording
// methods are safe to call on a nil *Metrics, which disables instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "statushub"

// Metrics contains the hub's counters and gauges.
type Metrics struct {
	registry *prometheus.Registry

	UpdatesApplied     prometheus.Counter
	UpdatesRejected    *prometheus.CounterVec
	EventsPublished    *prometheus.CounterVec
	DeliveryFailures   *prometheus.CounterVec
	SubscribersEvicted prometheus.Counter
	Subscribers        prometheus.Gauge
	Heartbeats         prometheus.Counter
	RateLimited        *prometheus.CounterVec
	AuthFailures       *prometheus.CounterVec
}

// New creates a Metrics instance registered on a fresh registry together with
// the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		UpdatesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "applied_total",
			Help:      "Total number of updates merged into the status document",
		}),

		UpdatesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "updates",
			Name:      "rejected_total",
			Help:      "Total number of update payloads rejected by the normalizer",
		}, []string{"reason"}),

		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published to subscribers",
		}, []string{"event"}),

		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "delivery_failures_total",
			Help:      "Total number of per-subscriber delivery failures",
		}, []string{"event"}),

		SubscribersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscribers",
			Name:      "evicted_total",
			Help:      "Total number of subscribers evicted after a failed write",
		}),

		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscribers",
			Name:      "active",
			Help:      "Number of live stream subscribers",
		}),

		Heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "heartbeat",
			Name:      "ticks_total",
			Help:      "Total number of heartbeat events published",
		}),

		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by rate admission",
		}, []string{"class"}),

		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "auth_failures_total",
			Help:      "Total number of requests rejected by secret checks",
		}, []string{"scope", "code"}),
	}

	m.registry.MustRegister(
		m.UpdatesApplied,
		m.UpdatesRejected,
		m.EventsPublished,
		m.DeliveryFailures,
		m.SubscribersEvicted,
		m.Subscribers,
		m.Heartbeats,
		m.RateLimited,
		m.AuthFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler exposing the registry in the Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordUpdateApplied counts one merged update.
func (m *Metrics) RecordUpdateApplied() {
	if m == nil {
		return
	}
	m.UpdatesApplied.Inc()
}

// RecordUpdateRejected counts one rejected payload.
func (m *Metrics) RecordUpdateRejected(reason string) {
	if m == nil {
		return
	}
	m.UpdatesRejected.WithLabelValues(reason).Inc()
}

// RecordPublish counts one published event and its failed deliveries.
func (m *Metrics) RecordPublish(event string, failed int) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(event).Inc()
	if failed > 0 {
		m.DeliveryFailures.WithLabelValues(event).Add(float64(failed))
	}
}

// RecordEviction counts one evicted subscriber.
func (m *Metrics) RecordEviction() {
	if m == nil {
		return
	}
	m.SubscribersEvicted.Inc()
}

// SetSubscribers records the live subscriber count.
func (m *Metrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

// RecordHeartbeat counts one heartbeat publish.
func (m *Metrics) RecordHeartbeat() {
	if m == nil {
		return
	}
	m.Heartbeats.Inc()
}

// RecordRateLimited counts one request refused by rate admission.
func (m *Metrics) RecordRateLimited(class string) {
	if m == nil {
		return
	}
	m.RateLimited.WithLabelValues(class).Inc()
}

// RecordAuthFailure counts one request refused by a secret check.
func (m *Metrics) RecordAuthFailure(scope, code string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(scope, code).Inc()
}
