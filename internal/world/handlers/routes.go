package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/response"
	"corridor-server/internal/world"
)

type RouteHandler struct {
	service *world.Service
}

func NewRouteHandler(service *world.Service) *RouteHandler {
	return &RouteHandler{service: service}
}

func (h *RouteHandler) PlanRoute(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "plan_route")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	from, err := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
	if err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid from location", err))
		return
	}
	to, err := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
	if err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid to location", err))
		return
	}

	route, err := h.service.PlanRoute(r.Context(), from, to)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, route)
}
