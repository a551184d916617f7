package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestHealthChecker_Basic(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })
	status := hc.CheckHealth()
	if status.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %s", status.Status)
	}
	if status.Service != "svc" || status.Version != "v1" {
		t.Fatalf("unexpected identity %s/%s", status.Service, status.Version)
	}
}

func TestHealthChecker_DegradedDoesNotFail(t *testing.T) {
	up := false
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("realtime", ConnectivityHealthCheck("realtime", func() bool { return up }))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", hc.Handler())

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), "GET", "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("degraded should still be 200, got %d", w.Code)
	}
	var body HealthStatus
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Status != StatusDegraded {
		t.Fatalf("expected degraded, got %s", body.Status)
	}

	up = true
	if got := hc.CheckHealth().Status; got != StatusHealthy {
		t.Fatalf("expected healthy once connected, got %s", got)
	}
}

func TestHealthChecker_UnhealthyIs503(t *testing.T) {
	hc := NewHealthChecker("svc", "v1")
	hc.AddCheck("redis", PingHealthCheck("redis", func(context.Context) error { return errors.New("refused") }))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", hc.Handler())

	w := httptest.NewRecorder()
	req, _ := http.NewRequestWithContext(context.Background(), "GET", "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	res := ConfigurationHealthCheck(map[string]string{"A": "x", "B": ""})()
	if res.Status != StatusUnhealthy {
		t.Fatalf("expected unhealthy for missing config, got %q", res.Status)
	}
	res = ConfigurationHealthCheck(map[string]string{"A": "x"})()
	if res.Status != StatusHealthy {
		t.Fatalf("expected healthy, got %q", res.Status)
	}
}
