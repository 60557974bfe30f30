// Package metrics registers the Prometheus instruments shared across the
// engine. Subsystems that need private instruments (e.g., the revocation
// lookup histogram) register their own via promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the application-level Prometheus metrics.
type Metrics struct {
	LoginsTotal        *prometheus.CounterVec
	AccountsRegistered prometheus.Counter
	RequestDuration    *prometheus.HistogramVec
	SweeperRowsTotal   *prometheus.CounterVec
	OutboxPublished    prometheus.Counter
	OutboxFailed       prometheus.Counter
}

// New creates and registers all shared metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		LoginsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "girok_logins_total",
			Help: "Login attempts partitioned by outcome",
		}, []string{"outcome"}),
		AccountsRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "girok_accounts_registered_total",
			Help: "Total number of accounts registered",
		}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "girok_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		SweeperRowsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "girok_sweeper_rows_total",
			Help: "Rows transitioned by background sweepers",
		}, []string{"sweeper"}),
		OutboxPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "girok_outbox_published_total",
			Help: "Outbox rows successfully delivered to the bus",
		}),
		OutboxFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "girok_outbox_publish_failures_total",
			Help: "Outbox delivery attempts that failed",
		}),
	}
}
