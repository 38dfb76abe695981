package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveProjection("signatures", time.Now(), 3)
	m.ObserveProjection("signatures", time.Now(), 0)
	m.Mutation("contract.created")
	m.Expired(2)
	m.Expired(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.projections.WithLabelValues("signatures")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.mutations.WithLabelValues("contract.created")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.expired))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveProjection("contracts", time.Now(), 1)
		m.Mutation("x")
		m.Expired(1)
	})
}
