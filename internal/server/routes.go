package server

import (
	"log/slog"
	"net/http"

	characterHandlers "corridor-server/internal/character/handlers"
	endgameHandlers "corridor-server/internal/endgame/handlers"
	groupHandlers "corridor-server/internal/groups/handlers"
	itemHandlers "corridor-server/internal/items/handlers"
	jobHandlers "corridor-server/internal/jobs/handlers"
	"corridor-server/internal/middleware"
	questHandlers "corridor-server/internal/quests/handlers"
	serverHandlers "corridor-server/internal/server/handlers"
	statsHandlers "corridor-server/internal/stats/handlers"
	travelHandlers "corridor-server/internal/travel/handlers"
	worldHandlers "corridor-server/internal/world/handlers"
)

type Routes struct {
	Health    *serverHandlers.HealthHandler
	Stream    http.Handler
	Character *characterHandlers.CharacterHandler
	Travel    *travelHandlers.TravelHandler
	World     *worldHandlers.RouteHandler
	Jobs      *jobHandlers.JobHandler
	Groups    *groupHandlers.GroupHandler
	Quests    *questHandlers.QuestHandler
	Items     *itemHandlers.ItemHandler
	Stats     *statsHandlers.StatsHandler
	Endgame   *endgameHandlers.EndgameHandler

	Auth      *middleware.Authenticator
	RateLimit *middleware.RateLimiter
}

func (r *Routes) Setup() *http.ServeMux {
	logger := slog.With("component", "routes", "operation", "setup")
	logger.Debug("Setting up gateway routes")

	mux := http.NewServeMux()

	// commands are throttled per acting player after the route has matched
	command := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, r.Auth.Require(r.RateLimit.Middleware(h)))
	}
	admin := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, r.Auth.RequireAdmin(h))
	}

	// Public endpoints
	mux.Handle("GET /api/server/health", r.Health)

	mux.Handle("GET /api/adapter/stream", r.Auth.Require(r.Stream))

	command("POST /api/users/{user_id}/character", r.Character.Create)
	command("GET /api/users/{user_id}/character", r.Character.Get)

	command("POST /api/users/{user_id}/travel", r.Travel.Travel)
	command("POST /api/users/{user_id}/travel/exit", r.Travel.EmergencyExit)
	command("POST /api/users/{user_id}/dock", r.Travel.Dock)
	command("POST /api/users/{user_id}/undock", r.Travel.Undock)
	command("GET /api/routes", r.World.PlanRoute)

	command("GET /api/locations/{location_id}/jobs", r.Jobs.Board)
	command("POST /api/users/{user_id}/jobs/accept", r.Jobs.Accept)
	command("POST /api/users/{user_id}/jobs/complete", r.Jobs.Complete)
	command("POST /api/users/{user_id}/jobs/abandon", r.Jobs.Abandon)

	command("POST /api/users/{user_id}/groups", r.Groups.Create)
	command("POST /api/users/{user_id}/groups/{group_id}/join", r.Groups.Join)
	command("POST /api/users/{user_id}/groups/leave", r.Groups.Leave)
	command("POST /api/users/{user_id}/votes/{session_id}", r.Groups.Vote)

	command("GET /api/locations/{location_id}/quests", r.Quests.Available)
	command("POST /api/users/{user_id}/quests/{quest_id}/accept", r.Quests.Accept)
	command("POST /api/users/{user_id}/quests/abandon", r.Quests.Abandon)
	command("GET /api/users/{user_id}/quests/status", r.Quests.Status)

	command("POST /api/users/{user_id}/items/use", r.Items.Use)
	command("POST /api/users/{user_id}/items/sell", r.Items.Sell)

	command("GET /api/users/{user_id}/stats", r.Stats.Sheet)
	command("POST /api/users/{user_id}/equipment", r.Stats.Equip)
	command("DELETE /api/users/{user_id}/equipment/{slot}", r.Stats.Unequip)

	// Admin-only endpoints
	admin("/api/admin/endgame", r.Endgame.Endgame)
	admin("POST /api/admin/quests", r.Quests.Create)
	admin("POST /api/admin/quests/{quest_id}/toggle", r.Quests.Toggle)
	admin("POST /api/admin/jobs/tick/{user_id}", r.Jobs.ForceTick)

	logger.Info("Routes configured successfully",
		"public_endpoints", []string{"/api/server/health"},
		"stream_endpoints", []string{"/api/adapter/stream"},
		"admin_endpoints", []string{"/api/admin/endgame", "/api/admin/quests", "/api/admin/jobs/tick"},
	)

	return mux
}
