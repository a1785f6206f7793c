// Package metrics holds the prometheus collectors for sync outcomes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Outcome label values.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

type Metrics struct {
	Propagations *prometheus.CounterVec
	Hydrations   *prometheus.CounterVec
	Broadcasts   *prometheus.CounterVec
	Logins       *prometheus.CounterVec
	Requests     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Propagations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abhyasika",
			Name:      "propagations_total",
			Help:      "Remote propagation attempts by collection, operation and result.",
		}, []string{"collection", "op", "result"}),
		Hydrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abhyasika",
			Name:      "hydrations_total",
			Help:      "Per-collection hydration fetches by result.",
		}, []string{"collection", "result"}),
		Broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abhyasika",
			Name:      "broadcast_deliveries_total",
			Help:      "Broadcast notification deliveries by result.",
		}, []string{"result"}),
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "abhyasika",
			Name:      "logins_total",
			Help:      "Login attempts by strategy and result.",
		}, []string{"strategy", "result"}),
		Requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "abhyasika",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method, route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg != nil {
		reg.MustRegister(m.Propagations, m.Hydrations, m.Broadcasts, m.Logins, m.Requests)
	}
	return m
}

// OrNew returns m, or a fresh unregistered set when m is nil.
func OrNew(m *Metrics) *Metrics {
	if m == nil {
		return New(nil)
	}
	return m
}
