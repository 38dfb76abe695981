// Package metrics exposes Prometheus collectors for record projections and
// mutations. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	projections *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	results     *prometheus.HistogramVec
	mutations   *prometheus.CounterVec
	expired     prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		projections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escra",
			Name:      "projections_total",
			Help:      "Record list projections by collection.",
		}, []string{"collection"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "escra",
			Name:      "projection_duration_seconds",
			Help:      "Time spent loading and projecting a record list.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"collection"}),
		results: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "escra",
			Name:      "projection_results",
			Help:      "Records remaining after filtering.",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"collection"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escra",
			Name:      "mutations_total",
			Help:      "Committed record mutations by event type.",
		}, []string{"type"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "escra",
			Name:      "signatures_expired_total",
			Help:      "Pending signature requests moved to Expired by the sweeper.",
		}),
	}
	reg.MustRegister(m.projections, m.duration, m.results, m.mutations, m.expired)
	return m
}

func (m *Metrics) ObserveProjection(collection string, started time.Time, total int) {
	if m == nil {
		return
	}
	m.projections.WithLabelValues(collection).Inc()
	m.duration.WithLabelValues(collection).Observe(time.Since(started).Seconds())
	m.results.WithLabelValues(collection).Observe(float64(total))
}

func (m *Metrics) Mutation(evtType string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(evtType).Inc()
}

func (m *Metrics) Expired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}
