// Package metrics provides Prometheus instrumentation for the chat server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ConnectionsTotal  prometheus.Counter
	AuthAttempts      *prometheus.CounterVec
	CommandsTotal     *prometheus.CounterVec
	FramesIn          prometheus.Counter
	FramesOut         prometheus.Counter
	BroadcastFanout   prometheus.Histogram
	RateLimited       prometheus.Counter

	namespace string
	reg       prometheus.Registerer
}

// New creates all collectors on the default registry, for serving via
// promhttp.Handler.
func New(namespace string) *Metrics {
	return NewWith(prometheus.DefaultRegisterer, namespace)
}

// NewWith creates all collectors on the given registerer. Tests use a fresh
// registry per server so repeated construction cannot collide.
func NewWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "framechat"
	}
	factory := promauto.With(reg)

	return &Metrics{
		namespace: namespace,
		reg:       reg,
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of currently open connections",
		}),
		ConnectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total number of accepted connections",
		}),
		AuthAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Total number of authentication attempts",
		}, []string{"result"}),
		CommandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of dispatched commands",
		}, []string{"command"}),
		FramesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_in_total",
			Help:      "Total number of frames received",
		}),
		FramesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_out_total",
			Help:      "Total number of frames sent",
		}),
		BroadcastFanout: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_fanout",
			Help:      "Recipients per room broadcast",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 128},
		}),
		RateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_commands_total",
			Help:      "Total number of commands rejected by the rate limiter",
		}),
	}
}

// RegisterRegistryGauges exposes live connection and room counts from the
// given count function.
func (m *Metrics) RegisterRegistryGauges(counts func() (conns, rooms int)) {
	factory := promauto.With(m.reg)
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "registered_connections",
		Help:      "Connections tracked by the registry",
	}, func() float64 {
		conns, _ := counts()
		return float64(conns)
	})
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Name:      "rooms",
		Help:      "Rooms in the registry, including empty ones",
	}, func() float64 {
		_, rooms := counts()
		return float64(rooms)
	})
}
