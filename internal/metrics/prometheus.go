// Package metrics exposes the Prometheus collectors the engine, egress
// filter, and worker pool report through, trimmed to the series this
// system actually emits: per-invocation counters and latency, egress
// filter decisions, blocklist reload count, and pool occupancy gauges.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the collectors registered for one process.
type Registry struct {
	registry *prometheus.Registry

	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	egressDecisions    *prometheus.CounterVec
	blocklistReloads   prometheus.Counter
	poolSize           prometheus.Gauge
	poolInflight       prometheus.Gauge
}

var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var (
	once sync.Once
	reg  *Registry
)

// Init builds and registers the collector set under namespace. Safe to
// call more than once; later calls are no-ops.
func Init(namespace string, buckets []float64) *Registry {
	once.Do(func() {
		if len(buckets) == 0 {
			buckets = defaultBuckets
		}
		r := prometheus.NewRegistry()
		r.MustRegister(prometheus.NewGoCollector())
		r.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

		reg = &Registry{
			registry: r,
			invocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total guest invocations by language and outcome.",
			}, []string{"language", "status"}),
			invocationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_milliseconds",
				Help:      "Invocation wall time in milliseconds, by language.",
				Buckets:   buckets,
			}, []string{"language"}),
			egressDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "egress_decisions_total",
				Help:      "Outbound connection decisions made by the egress filter.",
			}, []string{"decision"}),
			blocklistReloads: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "blocklist_reloads_total",
				Help:      "Total times the blocklist file was remapped.",
			}),
			poolSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_size",
				Help:      "Current number of live worker goroutines.",
			}),
			poolInflight: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_inflight",
				Help:      "Invocations currently executing.",
			}),
		}
		r.MustRegister(
			reg.invocationsTotal,
			reg.invocationDuration,
			reg.egressDecisions,
			reg.blocklistReloads,
			reg.poolSize,
			reg.poolInflight,
		)
	})
	return reg
}

// Default returns the process-wide registry, initializing it with
// defaults if Init has not been called yet.
func Default() *Registry {
	if reg == nil {
		return Init("kestrel", nil)
	}
	return reg
}

// RecordInvocation records one completed invocation's outcome and
// duration.
func (r *Registry) RecordInvocation(language string, d time.Duration, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	r.invocationsTotal.WithLabelValues(language, status).Inc()
	r.invocationDuration.WithLabelValues(language).Observe(float64(d.Milliseconds()))
}

// RecordEgressDecision records one allow/deny decision by the outbound
// filter.
func (r *Registry) RecordEgressDecision(allowed bool) {
	decision := "allow"
	if !allowed {
		decision = "deny"
	}
	r.egressDecisions.WithLabelValues(decision).Inc()
}

// RecordBlocklistReload records a blocklist file remap.
func (r *Registry) RecordBlocklistReload() {
	r.blocklistReloads.Inc()
}

// SetPoolSize reports the pool's current worker count and in-flight
// invocation count.
func (r *Registry) SetPoolSize(size, inflight int) {
	r.poolSize.Set(float64(size))
	r.poolInflight.Set(float64(inflight))
}

// Handler returns the scrape endpoint for GET /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
