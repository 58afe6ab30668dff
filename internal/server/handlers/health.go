package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"corridor-server/internal/gametime"
	"corridor-server/internal/shared/response"
)

// Pinger is satisfied by the database pool and the redis client.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	GameTime  string            `json:"game_time,omitempty"`
	Checks    map[string]string `json:"checks"`
}

type HealthHandler struct {
	checks map[string]Pinger
	clock  *gametime.Clock
}

// NewHealthHandler reports each named dependency. A nil Pinger is reported as
// disabled.
func NewHealthHandler(clock *gametime.Clock, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks, clock: clock}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "health")

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    make(map[string]string, len(h.checks)),
	}
	if h.clock != nil {
		resp.GameTime = gametime.FormatInGame(h.clock.NowInGame())
	}

	for name, p := range h.checks {
		if p == nil {
			resp.Checks[name] = "disabled"
			continue
		}
		if err := p.PingContext(ctx); err != nil {
			logger.Warn("Health check failed", "check", name, "error", err)
			resp.Checks[name] = "disconnected"
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "connected"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	response.Success(w, status, resp)
}
