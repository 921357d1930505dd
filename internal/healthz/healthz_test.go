package healthz

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestTracker_HealthyWithinWindow(t *testing.T) {
	tr := NewTracker(20 * time.Minute)
	tr.RecordCycle(time.Now())
	if !tr.Healthy() {
		t.Error("expected tracker to be healthy right after recording a cycle")
	}
}

func TestTracker_UnhealthyWhenStale(t *testing.T) {
	tr := NewTracker(time.Millisecond)
	tr.RecordCycle(time.Now().Add(-time.Hour))
	if tr.Healthy() {
		t.Error("expected tracker to be unhealthy when last cycle predates staleAfter")
	}
}

func TestServer_HealthzReturns200WhenHealthy(t *testing.T) {
	tr := NewTracker(20 * time.Minute)
	tr.RecordCycle(time.Now())
	reg := prometheus.NewRegistry()

	srv := NewServer(tr, reg)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestServer_HealthzReturns503WhenStale(t *testing.T) {
	tr := NewTracker(time.Millisecond)
	tr.RecordCycle(time.Now().Add(-time.Hour))
	reg := prometheus.NewRegistry()

	srv := NewServer(tr, reg)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServer_MetricsEndpointServesPrometheusFormat(t *testing.T) {
	tr := NewTracker(20 * time.Minute)
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.CyclesTotal.Inc()

	srv := NewServer(tr, reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "dealwatcher_cycles_total") {
		t.Error("expected metrics output to contain dealwatcher_cycles_total")
	}
}
