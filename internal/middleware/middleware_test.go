package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"corridor-server/internal/auth"
	"corridor-server/internal/shared/config"
)

var authConfig = config.AuthConfig{
	JWTSecret:       "0123456789abcdef0123456789abcdef",
	TokenExpiration: time.Hour,
	Issuer:          "corridor-server",
}

func token(t *testing.T, role auth.Role) string {
	t.Helper()
	tok, err := auth.GenerateJWT(authConfig, "test", role, time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	return tok
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func serve(h http.Handler, method, path, bearer string) int {
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec.Code
}

func TestAuthentication(t *testing.T) {
	a := NewAuthenticator(authConfig)
	mux := http.NewServeMux()
	mux.Handle("GET /api/users/{user_id}/stats", a.Require(ok))
	mux.Handle("GET /api/admin/endgame", a.RequireAdmin(ok))

	service, admin := token(t, auth.RoleService), token(t, auth.RoleAdmin)

	tests := []struct {
		name   string
		path   string
		bearer string
		want   int
	}{
		{"no token", "/api/users/1/stats", "", http.StatusUnauthorized},
		{"garbage token", "/api/users/1/stats", "not-a-jwt", http.StatusUnauthorized},
		{"service token", "/api/users/1/stats", service, http.StatusNoContent},
		{"service on admin route", "/api/admin/endgame", service, http.StatusForbidden},
		{"admin on admin route", "/api/admin/endgame", admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serve(mux, http.MethodGet, tt.path, tt.bearer); got != tt.want {
				t.Fatalf("status=%d want=%d", got, tt.want)
			}
		})
	}
}

func TestClaimsReachHandler(t *testing.T) {
	a := NewAuthenticator(authConfig)
	var seen *auth.Claims
	h := a.Require(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClaimsFromContext(r)
	}))
	serve(h, http.MethodGet, "/", token(t, auth.RoleService))
	if seen == nil || seen.Role != auth.RoleService || seen.Adapter != "test" {
		t.Fatalf("claims=%+v", seen)
	}
}

func TestRateLimitIsPerUser(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, BurstSize: 2})
	defer rl.Close()

	mux := http.NewServeMux()
	mux.Handle("POST /api/users/{user_id}/dock", rl.Middleware(ok))

	for i := 0; i < 2; i++ {
		if got := serve(mux, http.MethodPost, "/api/users/1/dock", ""); got != http.StatusNoContent {
			t.Fatalf("request %d status=%d", i, got)
		}
	}
	if got := serve(mux, http.MethodPost, "/api/users/1/dock", ""); got != http.StatusTooManyRequests {
		t.Fatalf("third request status=%d want=429", got)
	}
	if got := serve(mux, http.MethodPost, "/api/users/2/dock", ""); got != http.StatusNoContent {
		t.Fatalf("other user status=%d want=204", got)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{Enabled: false, RequestsPerSecond: 0.001, BurstSize: 1})
	for i := 0; i < 5; i++ {
		if got := serve(rl.Middleware(ok), http.MethodGet, "/", ""); got != http.StatusNoContent {
			t.Fatalf("status=%d", got)
		}
	}
}
