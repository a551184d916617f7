package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"frameworks/lookout/pkg/api/lookout"
	"frameworks/lookout/pkg/clients"
)

func fastRetries() Option {
	return WithHTTPExecutorConfig(clients.HTTPExecutorConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   2 * time.Millisecond,
	})
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("http://monitor.local/")
	if c.BaseURL() != "http://monitor.local" {
		t.Fatalf("expected trailing slash trimmed, got %s", c.BaseURL())
	}
	if c.client.Timeout != 10*time.Second {
		t.Fatalf("expected timeout 10s, got %v", c.client.Timeout)
	}
	if c.httpExecutor == nil || c.shouldRetry == nil {
		t.Fatal("expected default executor and retry predicate")
	}
}

func TestListChannels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/v1/channels" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]lookout.ChannelStatus{
			{ChannelID: "c1", ChannelName: "一套", Status: lookout.StatusNormal, SortOrder: 1},
			{ChannelID: "c2", ChannelName: "二套", Status: lookout.StatusAlarm, SortOrder: 2},
		})
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).ListChannels(context.Background())
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if len(got) != 2 || got[1].Status != lookout.StatusAlarm {
		t.Fatalf("unexpected channels: %+v", got)
	}
}

func TestListAlertsQuery(t *testing.T) {
	var gotLimit, gotStatus string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		gotStatus = r.URL.Query().Get("status")
		_, _ = w.Write([]byte(`[{"id":7,"channel_id":"c1","channel_name":null,"alert_type":"SILENT","severity":"WARNING","status":"ACTIVE","message":null,"started_at":"2024-06-01T09:00:00","resolved_at":null,"ack_at":null,"thumbnail_path":null}]`))
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL).ListAlerts(context.Background(), "", 0)
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if gotLimit != "200" || gotStatus != "" {
		t.Fatalf("expected limit=200 and no status, got limit=%q status=%q", gotLimit, gotStatus)
	}
	if len(got) != 1 || got[0].ID != 7 || got[0].ChannelName != nil {
		t.Fatalf("unexpected alerts: %+v", got)
	}

	if _, err := NewClient(srv.URL).ListAlerts(context.Background(), lookout.AlertStatusActive, 50); err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	if gotLimit != "50" || gotStatus != lookout.AlertStatusActive {
		t.Fatalf("expected limit=50 status=ACTIVE, got limit=%q status=%q", gotLimit, gotStatus)
	}
}

func TestAckAlert(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		_, _ = w.Write([]byte(`{"alert_id":42,"status":"ACKNOWLEDGED"}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL).AckAlert(context.Background(), 42)
	if err != nil {
		t.Fatalf("AckAlert: %v", err)
	}
	if gotMethod != http.MethodPost || gotPath != "/api/v1/alerts/42/ack" {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
	if resp.AlertID != 42 || resp.Status != lookout.AlertStatusAcknowledged {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"NORMAL":3,"WARNING":1,"ALARM":0,"OFFLINE":2,"total":6}`))
	}))
	defer srv.Close()

	stats, err := NewClient(srv.URL, fastRetries()).Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 calls, got %d", calls.Load())
	}
	if stats.Total != 6 || stats.Offline != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, fastRetries()).AckAlert(context.Background(), 1)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 APIError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single call, got %d", calls.Load())
	}
}

func TestExhaustedRetriesReportStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, fastRetries()).ListChannels(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 APIError, got %v", err)
	}
}
