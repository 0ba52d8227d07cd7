package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the server's Prometheus instruments. A nil *Metrics is valid
// everywhere one is accepted; callers guard with a nil check so tests can
// run without touching the default registry.
type Metrics struct {
	activeConnections prometheus.Gauge
	registeredHandles prometheus.Gauge
	chatLogs          prometheus.Gauge
	connectionsTotal  *prometheus.CounterVec
	disconnectsTotal  *prometheus.CounterVec
	messagesReceived  *prometheus.CounterVec
	messagesSent      *prometheus.CounterVec
	messagesRelayed   prometheus.Counter
	decodeErrors      prometheus.Counter
}

// NewMetrics registers the server's metrics with the default Prometheus
// registry. Call at most once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		activeConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "parley_active_connections",
			Help: "Number of live client connections",
		}),
		registeredHandles: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "parley_registered_handles",
			Help: "Number of handles currently registered",
		}),
		chatLogs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "parley_chat_logs",
			Help: "Number of pairwise chat logs in the store",
		}),
		connectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_connections_total",
			Help: "Total accepted connections by transport",
		}, []string{"transport"}),
		disconnectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_disconnects_total",
			Help: "Total closed connections by transport",
		}, []string{"transport"}),
		messagesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_messages_received_total",
			Help: "Total protocol messages received by type",
		}, []string{"type"}),
		messagesSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_messages_sent_total",
			Help: "Total protocol messages sent by type",
		}, []string{"type"}),
		messagesRelayed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "parley_messages_relayed_total",
			Help: "Total chat messages forwarded to their target",
		}),
		decodeErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "parley_decode_errors_total",
			Help: "Total payload decode failures on registered connections",
		}),
	}
}

func (m *Metrics) RecordActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

func (m *Metrics) RecordRegisteredHandles(count int) {
	m.registeredHandles.Set(float64(count))
}

func (m *Metrics) RecordChatLogs(count int) {
	m.chatLogs.Set(float64(count))
}

func (m *Metrics) RecordConnectionOpened(transport string) {
	m.connectionsTotal.WithLabelValues(transport).Inc()
}

func (m *Metrics) RecordConnectionClosed(transport string) {
	m.disconnectsTotal.WithLabelValues(transport).Inc()
}

func (m *Metrics) RecordMessageReceived(typeName string) {
	m.messagesReceived.WithLabelValues(typeName).Inc()
}

func (m *Metrics) RecordMessageSent(typeName string) {
	m.messagesSent.WithLabelValues(typeName).Inc()
}

func (m *Metrics) RecordMessageRelayed() {
	m.messagesRelayed.Inc()
}

func (m *Metrics) RecordDecodeError() {
	m.decodeErrors.Inc()
}
