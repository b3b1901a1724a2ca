// Package metrics exposes prometheus instrumentation for the lending
// service on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	registry *prometheus.Registry

	paymentsProcessed  prometheus.Counter
	paymentsFailed     prometheus.Counter
	allocationDuration prometheus.Histogram
	loansOverdue       prometheus.Gauge
	refinances         prometheus.Counter
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		paymentsProcessed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "lending_payments_processed_total",
			Help: "Total number of successfully allocated payments",
		}),
		paymentsFailed: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "lending_payments_failed_total",
			Help: "Total number of rejected or failed payment allocations",
		}),
		allocationDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "lending_allocation_duration_seconds",
			Help:    "Time taken to allocate one payment",
			Buckets: prometheus.DefBuckets,
		}),
		loansOverdue: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "lending_loans_overdue",
			Help: "Loans flagged overdue by the last detection pass",
		}),
		refinances: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "lending_refinances_total",
			Help: "Total number of completed refinances",
		}),
	}
}

func (c *Collector) PaymentProcessed(duration time.Duration) {
	c.paymentsProcessed.Inc()
	c.allocationDuration.Observe(duration.Seconds())
}

func (c *Collector) PaymentFailed()        { c.paymentsFailed.Inc() }
func (c *Collector) RefinanceCompleted()   { c.refinances.Inc() }
func (c *Collector) SetOverdueLoans(n int) { c.loansOverdue.Set(float64(n)) }

// Handler serves the /metrics endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
