package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Factory creates registered metric vectors. *monitoring.MetricsCollector
// satisfies it.
type Factory interface {
	NewCounter(name, help string, labels []string) *prometheus.CounterVec
	NewGauge(name, help string, labels []string) *prometheus.GaugeVec
	NewHistogram(name, help string, labels []string, buckets []float64) *prometheus.HistogramVec
}

// Metrics holds all Prometheus metrics for the lookout service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	// Suppression engine
	AlarmEvents        *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	SpeechRequests     *prometheus.CounterVec
	SuppressionEntries *prometheus.GaugeVec
	BatchSize          *prometheus.HistogramVec

	// Realtime transport
	ConnectionState  *prometheus.GaugeVec
	Reconnects       *prometheus.CounterVec
	RealtimeMessages *prometheus.CounterVec

	// Collaborators
	PreloadRequests           *prometheus.CounterVec
	CircuitBreakerTransitions *prometheus.CounterVec
}

// New builds the service metrics on f.
func New(f Factory) *Metrics {
	return &Metrics{
		AlarmEvents:        f.NewCounter("alarm_events_total", "Fault events submitted to the suppression engine", []string{"outcome"}),
		Notifications:      f.NewCounter("alarm_notifications_total", "Notifications emitted by flushes", []string{"kind"}),
		SpeechRequests:     f.NewCounter("speech_requests_total", "Speech requests by result", []string{"result"}),
		SuppressionEntries: f.NewGauge("suppression_entries", "Suppression entries currently held", nil),
		BatchSize:          f.NewHistogram("alarm_batch_size", "Events per flushed batch", nil, []float64{1, 2, 3, 4, 5, 10, 20, 50}),

		ConnectionState:  f.NewGauge("realtime_connection_state", "1 for the current realtime client state", []string{"state"}),
		Reconnects:       f.NewCounter("realtime_reconnects_scheduled_total", "Reconnect attempts scheduled", nil),
		RealtimeMessages: f.NewCounter("realtime_messages_total", "Decoded realtime messages", []string{"type"}),

		PreloadRequests:           f.NewCounter("preload_requests_total", "REST snapshot requests", []string{"resource", "result"}),
		CircuitBreakerTransitions: f.NewCounter("circuit_breaker_transitions_total", "Circuit breaker state transitions", []string{"name", "to"}),
	}
}

func (m *Metrics) AlarmEvent(outcome string) {
	if m == nil {
		return
	}
	m.AlarmEvents.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notification(kind string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(kind).Inc()
}

func (m *Metrics) Speech(result string) {
	if m == nil {
		return
	}
	m.SpeechRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) Suppression(entries int) {
	if m == nil {
		return
	}
	m.SuppressionEntries.WithLabelValues().Set(float64(entries))
}

func (m *Metrics) Batch(size int) {
	if m == nil {
		return
	}
	m.BatchSize.WithLabelValues().Observe(float64(size))
}

// State marks state as the only active connection state.
func (m *Metrics) State(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.ConnectionState.WithLabelValues(s).Set(v)
	}
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.Reconnects.WithLabelValues().Inc()
}

func (m *Metrics) Message(msgType string) {
	if m == nil {
		return
	}
	m.RealtimeMessages.WithLabelValues(msgType).Inc()
}

func (m *Metrics) Preload(resource, result string) {
	if m == nil {
		return
	}
	m.PreloadRequests.WithLabelValues(resource, result).Inc()
}

func (m *Metrics) BreakerTransition(name, to string) {
	if m == nil {
		return
	}
	m.CircuitBreakerTransitions.WithLabelValues(name, to).Inc()
}
