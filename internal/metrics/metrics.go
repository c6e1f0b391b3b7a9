// Package metrics provides Prometheus metrics for PeerLink.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "peerlink"
)

// Admission rejection reasons used as label values.
const (
	RejectInvalidKey = "invalid_key"
	RejectIDTaken    = "id_taken"
	RejectInvalidID  = "invalid_id"
	RejectCapacity   = "capacity"
)

// Relay failure causes used as label values.
const (
	RelayTargetAbsent = "target_absent"
	RelaySendFailed   = "send_failed"
	RelayUnknownType  = "unknown_type"
)

// Disconnect reasons used as label values.
const (
	DisconnectLeave     = "leave"
	DisconnectTransport = "transport"
	DisconnectExpired   = "expired"
	DisconnectShutdown  = "shutdown"
)

// Metrics contains all Prometheus metrics for the relay server.
type Metrics struct {
	// Connection metrics
	ClientsConnected  prometheus.Gauge
	ClientsTotal      prometheus.Counter
	AdmissionRejects  *prometheus.CounterVec
	ClientDisconnects *prometheus.CounterVec

	// Relay metrics
	MessagesRelayed   *prometheus.CounterVec
	RelayErrors       *prometheus.CounterVec
	HeartbeatsRecv    prometheus.Counter
	ClientsExpired    prometheus.Counter
	MessagesMalformed prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Default returns the default metrics instance.
func Default() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = NewMetrics()
	})
	return defaultMetrics
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance with a custom registry.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		// Connection metrics
		ClientsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clients_connected",
			Help:      "Number of currently registered clients",
		}),
		ClientsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_total",
			Help:      "Total number of clients admitted",
		}),
		AdmissionRejects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_rejects_total",
			Help:      "Total rejected admission attempts by reason",
		}, []string{"reason"}),
		ClientDisconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_disconnects_total",
			Help:      "Total client disconnections by reason",
		}, []string{"reason"}),

		// Relay metrics
		MessagesRelayed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_relayed_total",
			Help:      "Total addressed messages relayed by type",
		}, []string{"type"}),
		RelayErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors_total",
			Help:      "Total relay failures by cause",
		}, []string{"cause"}),
		HeartbeatsRecv: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_received_total",
			Help:      "Total keep-alive messages received",
		}),
		ClientsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clients_expired_total",
			Help:      "Total clients evicted by the liveness sweeper",
		}),
		MessagesMalformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_malformed_total",
			Help:      "Total inbound messages dropped as malformed",
		}),
	}

	return m
}

// RecordAdmit records a successful client admission.
func (m *Metrics) RecordAdmit() {
	m.ClientsConnected.Inc()
	m.ClientsTotal.Inc()
}

// RecordReject records a rejected admission attempt.
func (m *Metrics) RecordReject(reason string) {
	m.AdmissionRejects.WithLabelValues(reason).Inc()
}

// RecordDisconnect records a client removal.
func (m *Metrics) RecordDisconnect(reason string) {
	m.ClientsConnected.Dec()
	m.ClientDisconnects.WithLabelValues(reason).Inc()
}

// RecordRelayed records a successfully forwarded addressed message.
func (m *Metrics) RecordRelayed(messageType string) {
	m.MessagesRelayed.WithLabelValues(messageType).Inc()
}

// RecordRelayError records a relay failure by cause.
func (m *Metrics) RecordRelayError(cause string) {
	m.RelayErrors.WithLabelValues(cause).Inc()
}

// RecordHeartbeat records a received keep-alive.
func (m *Metrics) RecordHeartbeat() {
	m.HeartbeatsRecv.Inc()
}

// RecordExpired records a sweeper eviction.
func (m *Metrics) RecordExpired() {
	m.ClientsExpired.Inc()
}

// RecordMalformed records a dropped malformed message.
func (m *Metrics) RecordMalformed() {
	m.MessagesMalformed.Inc()
}
