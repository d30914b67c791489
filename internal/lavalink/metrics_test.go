package lavalink

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodesShareRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()

	a := newTestNode(t, func(c *Config) { c.Registerer = reg })
	b := newTestNode(t, func(c *Config) {
		c.Registerer = reg
		c.Port = 2334
	})

	a.connect(t)
	b.connect(t)
	assert.Same(t, a.metrics.state, b.metrics.state)
	assert.Equal(t, float64(StateConnected), testutil.ToFloat64(a.metrics.state.WithLabelValues(a.Addr())))
	assert.Equal(t, float64(StateConnected), testutil.ToFloat64(b.metrics.state.WithLabelValues(b.Addr())))
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "lavalink_node_state"))
}

func TestNewMetricsReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewMetrics(reg)
	second := NewMetrics(reg)

	second.searches.WithLabelValues("found").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(first.searches.WithLabelValues("found")))
}

func TestNewMetricsConflictPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lavalink_searches_total",
		Help: "something else",
	}, []string{"outcome"})))

	assert.Panics(t, func() { NewMetrics(reg) })
}
