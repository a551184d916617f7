package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"frameworks/lookout/pkg/monitoring"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.AlarmEvent("accepted")
	m.Notification("aggregate")
	m.Speech("ok")
	m.Suppression(3)
	m.Batch(2)
	m.State("open", []string{"open", "closed"})
	m.Reconnect()
	m.Message("alert_new")
	m.Preload("channels", "ok")
	m.BreakerTransition("speech", "open")
}

func TestStateIsExclusive(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(monitoring.NewMetricsCollectorWithRegistry("lookout", "test", "test", reg, reg))

	all := []string{"connecting", "open", "closed"}
	m.State("connecting", all)
	m.State("open", all)

	if got := testutil.ToFloat64(m.ConnectionState.WithLabelValues("open")); got != 1 {
		t.Fatalf("open = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ConnectionState.WithLabelValues("connecting")); got != 0 {
		t.Fatalf("connecting = %v, want 0", got)
	}

	m.AlarmEvent("suppressed")
	m.AlarmEvent("suppressed")
	if got := testutil.ToFloat64(m.AlarmEvents.WithLabelValues("suppressed")); got != 2 {
		t.Fatalf("suppressed = %v, want 2", got)
	}
}
