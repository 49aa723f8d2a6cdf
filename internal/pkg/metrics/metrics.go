// internal/pkg/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the client-side counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BackendRequests     *prometheus.CounterVec
	BackendLatencyMS    *prometheus.HistogramVec
	CartLoadRetries     prometheus.Counter
	CartRollbacks       prometheus.Counter
	CheckoutTransitions *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "backend",
		Name:      "requests_total",
		Help:      "Total number of backend requests.",
	}, []string{"method", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: "backend",
		Name:      "request_duration_ms",
		Help:      "Backend request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method"})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "cart",
		Name:      "load_retries_total",
		Help:      "Cart load attempts retried after a transient failure.",
	})
	rollbacks := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "cart",
		Name:      "rollbacks_total",
		Help:      "Optimistic cart edits restored after the backend refused them.",
	})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "transitions_total",
		Help:      "Checkout state machine transitions.",
	}, []string{"from", "to"})

	reg.MustRegister(requests, latency, retries, rollbacks, transitions)
	return &Metrics{
		BackendRequests:     requests,
		BackendLatencyMS:    latency,
		CartLoadRetries:     retries,
		CartRollbacks:       rollbacks,
		CheckoutTransitions: transitions,
	}
}

func (m *Metrics) ObserveBackend(method, status string, ms float64) {
	if m == nil {
		return
	}
	m.BackendRequests.WithLabelValues(method, status).Inc()
	m.BackendLatencyMS.WithLabelValues(method).Observe(ms)
}

func (m *Metrics) CartRetry() {
	if m == nil {
		return
	}
	m.CartLoadRetries.Inc()
}

func (m *Metrics) CartRollback() {
	if m == nil {
		return
	}
	m.CartRollbacks.Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.CheckoutTransitions.WithLabelValues(from, to).Inc()
}

// Handler exposes the counters gathered by g in the Prometheus text format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
