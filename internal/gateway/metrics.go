package gateway

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-gateway/internal/device"
)

const metricsNamespace = "graylogic_gateway"

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	connections  *prometheus.GaugeVec   // live connections by role
	terminations *prometheus.CounterVec // terminations by role and reason
	handshakes   *prometheus.CounterVec // rejected handshakes by role and status
	dropped      *prometheus.CounterVec // dropped frames by role and error kind
	actions      *prometheus.CounterVec // routed actions by action and result
	broadcasts   prometheus.Counter     // DATA frames queued to clients
	telemetry    prometheus.Counter     // telemetry frames accepted from devices
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections",
			Help:      "Live connections by role",
		}, []string{"role"}),
		terminations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "terminations_total",
			Help:      "Connection terminations by role and reason",
		}, []string{"role", "reason"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "handshake_rejections_total",
			Help:      "Rejected handshakes by role and HTTP status",
		}, []string{"role", "status"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "dropped_frames_total",
			Help:      "Frames dropped by role and error kind",
		}, []string{"role", "kind"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "actions_total",
			Help:      "Client actions by action and result",
		}, []string{"action", "result"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broadcast_frames_total",
			Help:      "DATA frames queued to clients",
		}),
		telemetry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "telemetry_frames_total",
			Help:      "Telemetry frames accepted from devices",
		}),
	}

	reg.MustRegister(
		m.connections,
		m.terminations,
		m.handshakes,
		m.dropped,
		m.actions,
		m.broadcasts,
		m.telemetry,
	)
	return m
}

func (m *Metrics) connected(role string) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(role).Inc()
}

func (m *Metrics) disconnected(role string, reason Reason) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(role).Dec()
	m.terminations.WithLabelValues(role, string(reason)).Inc()
}

func (m *Metrics) handshakeRejected(role string, status int) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(role, statusLabel(status)).Inc()
}

func (m *Metrics) frameDropped(role string, err error) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(role, errorKind(err)).Inc()
}

func (m *Metrics) actionRouted(action device.Action, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = errorKind(err)
	}
	m.actions.WithLabelValues(actionLabel(action), result).Inc()
}

// actionLabel bounds label cardinality to the recognised actions.
func actionLabel(action device.Action) string {
	for _, k := range device.AllKinds() {
		if b, ok := device.BehaviourOf(k); ok && b.Supports(action) {
			return string(action)
		}
	}
	return "unrecognised"
}

func (m *Metrics) broadcastSent() {
	if m == nil {
		return
	}
	m.broadcasts.Inc()
}

func (m *Metrics) telemetryAccepted() {
	if m == nil {
		return
	}
	m.telemetry.Inc()
}

func statusLabel(status int) string {
	switch status {
	case 400:
		return "400"
	case 401:
		return "401"
	case 503:
		return "503"
	default:
		return "other"
	}
}
