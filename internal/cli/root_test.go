package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"frameworks/lookout/pkg/api/lookout"
)

// fakeLookout records requests and answers like the lookout operator API.
type fakeLookout struct {
	mu       sync.Mutex
	requests []string
	speech   bool
}

func (f *fakeLookout) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
	f.mu.Unlock()

	switch r.Method + " " + r.URL.Path {
	case "GET /api/v1/status":
		_ = json.NewEncoder(w).Encode(lookout.StatusResponse{
			Service:     "lookout",
			Version:     "v1.0.0",
			Uptime:      "1m0s",
			Speech:      lookout.SpeechStatus{Enabled: true, Available: true, Backend: "command"},
			Suppression: lookout.SuppressionStatus{Entries: 3, Pending: 1, Emitted: 2},
			Realtime:    lookout.RealtimeStatus{URL: "ws://monitor/ws/realtime", State: "reconnect_scheduled", NextDelay: "4s"},
			Notifications: []lookout.NotificationView{
				{Kind: "individual", Text: "一套发生黑屏告警", At: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)},
			},
		})
	case "GET /api/v1/channels":
		_ = json.NewEncoder(w).Encode([]lookout.ChannelStatus{{ChannelID: "c1", ChannelName: "一套", Status: lookout.StatusAlarm}})
	case "GET /api/v1/overview":
		_ = json.NewEncoder(w).Encode(lookout.OverviewStats{Alarm: 1, Total: 1})
	case "GET /api/v1/alerts":
		_ = json.NewEncoder(w).Encode([]lookout.Alert{{ID: 7, ChannelID: "c1", AlertType: "SILENT", Status: lookout.AlertStatusActive}})
	case "POST /api/v1/alerts/7/ack":
		_ = json.NewEncoder(w).Encode(lookout.AckResponse{AlertID: 7, Status: lookout.AlertStatusAcknowledged})
	case "POST /api/v1/alerts/8/ack":
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(lookout.ErrorResponse{Error: "alert not found"})
	case "PUT /api/v1/speech":
		var req lookout.SpeechToggleRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.mu.Lock()
		f.speech = *req.Enabled
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(lookout.SpeechToggleResponse{Enabled: *req.Enabled})
	case "POST /api/v1/speech/test":
		_ = json.NewEncoder(w).Encode(lookout.SpeechTestResponse{Spoken: false, Text: "test"})
	case "POST /api/v1/suppression/reset":
		_, _ = w.Write([]byte(`{"cleared":3}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeLookout) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ""
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeLookout) speechOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.speech
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func newFake(t *testing.T) (*fakeLookout, string) {
	t.Helper()
	f := &fakeLookout{}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func TestStatusText(t *testing.T) {
	_, url := newFake(t)
	out, err := run(t, "--server", url, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"lookout v1.0.0", "Speech:      on", "3 entries, 1 pending", "next retry in 4s", "一套发生黑屏告警"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	_, url := newFake(t)
	out, err := run(t, "--server", url, "--output", "json", "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st lookout.StatusResponse
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if st.Suppression.Entries != 3 {
		t.Fatalf("entries = %d", st.Suppression.Entries)
	}
}

func TestServerFromEnv(t *testing.T) {
	f, url := newFake(t)
	t.Setenv("LOOKOUT_SERVER", url)
	if _, err := run(t, "reset-suppression"); err != nil {
		t.Fatalf("reset-suppression: %v", err)
	}
	if got := f.last(); got != "POST /api/v1/suppression/reset" {
		t.Fatalf("last request = %q", got)
	}
}

func TestMuteUnmute(t *testing.T) {
	f, url := newFake(t)

	out, err := run(t, "--server", url, "mute")
	if err != nil {
		t.Fatalf("mute: %v", err)
	}
	if !strings.Contains(out, "Speech off") || f.speechOn() {
		t.Fatalf("expected speech off, got %q", out)
	}

	out, err = run(t, "--server", url, "unmute")
	if err != nil {
		t.Fatalf("unmute: %v", err)
	}
	if !strings.Contains(out, "Speech on") || !f.speechOn() {
		t.Fatalf("expected speech on, got %q", out)
	}
}

func TestAlertsFlags(t *testing.T) {
	f, url := newFake(t)
	out, err := run(t, "--server", url, "alerts", "--status", "active", "--limit", "5")
	if err != nil {
		t.Fatalf("alerts: %v", err)
	}
	if got := f.last(); got != "GET /api/v1/alerts?limit=5&status=ACTIVE" {
		t.Fatalf("last request = %q", got)
	}
	if !strings.Contains(out, "#7") {
		t.Fatalf("output missing alert: %s", out)
	}
}

func TestChannels(t *testing.T) {
	_, url := newFake(t)
	out, err := run(t, "--server", url, "channels")
	if err != nil {
		t.Fatalf("channels: %v", err)
	}
	if !strings.Contains(out, "alarm=1") || !strings.Contains(out, "一套 (c1)") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestAck(t *testing.T) {
	_, url := newFake(t)

	out, err := run(t, "--server", url, "ack", "7")
	if err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !strings.Contains(out, "Alert #7 acknowledged") {
		t.Fatalf("unexpected output: %s", out)
	}

	_, err = run(t, "--server", url, "ack", "8")
	if err == nil || !strings.Contains(err.Error(), "alert not found") {
		t.Fatalf("expected not found error, got %v", err)
	}

	if _, err := run(t, "--server", url, "ack", "abc"); err == nil {
		t.Fatal("expected error for non-numeric id")
	}
}

func TestTestSpeechReportsMuted(t *testing.T) {
	_, url := newFake(t)
	out, err := run(t, "--server", url, "test-speech")
	if err != nil {
		t.Fatalf("test-speech: %v", err)
	}
	if !strings.Contains(out, "Not spoken") {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := run(t, "version", "--output", "json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out, `"version"`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestSpeakerRequiresRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("LOOKOUT_REDIS_URL", "")
	_, err := run(t, "speaker", "--binary", "true")
	if err == nil || !strings.Contains(err.Error(), "redis URL is required") {
		t.Fatalf("expected redis URL error, got %v", err)
	}
}

func TestSpeakerStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)

	root := NewRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"speaker", "--binary", "true", "--redis-url", "redis://" + mr.Addr()})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		t.Fatalf("speaker: %v", err)
	}
}
