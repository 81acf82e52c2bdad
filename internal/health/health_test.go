package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestServer_Endpoints(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]bool
		path       string
		wantStatus int
	}{
		{"live_without_checks", nil, "/live", http.StatusOK},
		{"healthy", map[string]bool{"ledger": true, "exchange": true}, "/health", http.StatusOK},
		{"degraded", map[string]bool{"ledger": true, "exchange": false}, "/health", http.StatusServiceUnavailable},
		{"ready", map[string]bool{"ledger": true}, "/ready", http.StatusOK},
		{"not_ready", map[string]bool{"curve-reader": false}, "/ready", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer("test")
			for name, ok := range tt.checks {
				s.RegisterCheck(name, func(context.Context) (bool, string) { return ok, name })
			}

			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
		})
	}
}

func TestServer_HealthBody(t *testing.T) {
	s := NewServer("v1.2.3")
	s.RegisterCheck("exchange", func(context.Context) (bool, string) { return false, "holds 5 USDC" })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var status Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "degraded" || status.Version != "v1.2.3" {
		t.Errorf("unexpected status %+v", status)
	}
	if c := status.Checks["exchange"]; c.Healthy || c.Message != "holds 5 USDC" {
		t.Errorf("unexpected check %+v", c)
	}
}
