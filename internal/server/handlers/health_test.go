package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantCode   int
		wantStatus string
		wantRedis  string
	}{
		{"all up", map[string]Pinger{"database": up, "redis": up}, http.StatusOK, "healthy", "connected"},
		{"redis disabled", map[string]Pinger{"database": up, "redis": nil}, http.StatusOK, "healthy", "disabled"},
		{"redis down", map[string]Pinger{"database": up, "redis": down}, http.StatusServiceUnavailable, "degraded", "disconnected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(nil, tt.checks).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/server/health", nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("code=%d want=%d", rec.Code, tt.wantCode)
			}
			var resp HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus || resp.Checks["redis"] != tt.wantRedis || resp.Checks["database"] != "connected" {
				t.Fatalf("resp=%+v", resp)
			}
		})
	}
}
