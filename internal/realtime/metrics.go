package realtime

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "streamhub"

// Metrics holds Prometheus metrics for the hub. A nil *Metrics records nothing.
type Metrics struct {
	ActiveConnections  prometheus.Gauge
	Channels           *prometheus.GaugeVec
	MessagesSent       prometheus.Counter
	SendFailures       prometheus.Counter
	CapacityRejections prometheus.Counter
	ReapedConnections  prometheus.Counter
	StatsPushes        prometheus.Counter
}

// NewMetrics creates and registers hub metrics on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "active_connections",
			Help:      "Number of connections tracked by the registry.",
		}),
		Channels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "channels",
			Help:      "Number of non-empty channels by kind.",
		}, []string{"kind"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "messages_sent_total",
			Help:      "Total number of messages queued to connections by broadcasts.",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "send_failures_total",
			Help:      "Total number of broadcast sends that failed and evicted a member.",
		}),
		CapacityRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "capacity_rejections_total",
			Help:      "Total number of stream subscriptions rejected at capacity.",
		}),
		ReapedConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "reaped_connections_total",
			Help:      "Total number of idle connections evicted by the reaper.",
		}),
		StatsPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "websocket",
			Name:      "stats_pushes_total",
			Help:      "Total number of periodic stats broadcasts.",
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.Channels,
		m.MessagesSent,
		m.SendFailures,
		m.CapacityRejections,
		m.ReapedConnections,
		m.StatsPushes,
	)
	return m
}

func (m *Metrics) connectionTracked() {
	if m != nil {
		m.ActiveConnections.Inc()
	}
}

func (m *Metrics) connectionForgotten() {
	if m != nil {
		m.ActiveConnections.Dec()
	}
}

func (m *Metrics) channelOpened(kind ChannelKind) {
	if m != nil {
		m.Channels.WithLabelValues(kind.String()).Inc()
	}
}

func (m *Metrics) channelClosed(kind ChannelKind) {
	if m != nil {
		m.Channels.WithLabelValues(kind.String()).Dec()
	}
}

func (m *Metrics) messagesSent(ok, failed int) {
	if m == nil {
		return
	}
	m.MessagesSent.Add(float64(ok))
	m.SendFailures.Add(float64(failed))
}

func (m *Metrics) capacityRejected() {
	if m != nil {
		m.CapacityRejections.Inc()
	}
}

func (m *Metrics) reaped() {
	if m != nil {
		m.ReapedConnections.Inc()
	}
}

func (m *Metrics) statsPushed() {
	if m != nil {
		m.StatsPushes.Inc()
	}
}
