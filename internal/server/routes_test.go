package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"corridor-server/internal/middleware"
	serverHandlers "corridor-server/internal/server/handlers"
	"corridor-server/internal/shared/config"
)

func TestSetupRegistersGateway(t *testing.T) {
	r := &Routes{
		Health: serverHandlers.NewHealthHandler(nil, nil),
		Stream: http.NotFoundHandler(),
		Auth: middleware.NewAuthenticator(config.AuthConfig{
			JWTSecret:       "0123456789abcdef0123456789abcdef",
			TokenExpiration: time.Hour,
			Issuer:          "corridor-server",
		}),
		RateLimit: middleware.NewRateLimiter(middleware.RateLimitConfig{}),
	}
	mux := r.Setup()

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/server/health", http.StatusOK},
		{http.MethodGet, "/api/adapter/stream", http.StatusUnauthorized},
		{http.MethodPost, "/api/users/7/travel", http.StatusUnauthorized},
		{http.MethodPost, "/api/users/7/votes/0b6b7a0e-1f7d-4a4e-9d8a-3f5c2f9a1b11", http.StatusUnauthorized},
		{http.MethodDelete, "/api/users/7/equipment/weapon", http.StatusUnauthorized},
		{http.MethodGet, "/api/admin/endgame", http.StatusUnauthorized},
		{http.MethodGet, "/api/users/7/travel", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/nowhere", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			if rec.Code != tt.want {
				t.Fatalf("status=%d want=%d", rec.Code, tt.want)
			}
		})
	}
}
