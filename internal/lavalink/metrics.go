package lavalink

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the node's collectors. A nil Registerer in Config yields
// collectors that are never registered, which keeps tests independent.
// Nodes and resolvers sharing a Registerer share the collectors; the node
// label tells them apart.
type Metrics struct {
	framesReceived *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	decodeFailures *prometheus.CounterVec
	state          *prometheus.GaugeVec
	searches       *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		framesReceived: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lavalink_frames_received_total",
			Help: "Inbound node frames by dispatch class",
		}, []string{"node", "class"})),
		framesSent: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lavalink_frames_sent_total",
			Help: "Outbound node frames by op",
		}, []string{"node", "op"})),
		decodeFailures: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lavalink_decode_failures_total",
			Help: "Inbound frames dropped because they could not be decoded",
		}, []string{"node", "stage"})),
		state: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lavalink_node_state",
			Help: "Current node connection state (0 idle, 1 connecting, 2 connected, 3 closing)",
		}, []string{"node"})),
		searches: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lavalink_searches_total",
			Help: "Track searches by outcome",
		}, []string{"result"})),
	}
}

// register adds c to reg, or returns the collector already registered under
// the same descriptor. Conflicting definitions still panic.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
