package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/response"
	"corridor-server/internal/travel"
)

type TravelHandler struct {
	service *travel.Service
}

func NewTravelHandler(service *travel.Service) *TravelHandler {
	return &TravelHandler{service: service}
}

type travelRequest struct {
	CorridorID int64 `json:"corridor_id"`
}

type undockRequest struct {
	Confirm bool `json:"confirm"`
}

func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		return 0, errors.WrapValidation("invalid user ID format", err)
	}
	return id, nil
}

func (h *TravelHandler) Travel(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "travel")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	id, err := userID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	var req travelRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}
	if req.CorridorID <= 0 {
		response.Error(w, r, logger, errors.Validation("corridor_id is required"))
		return
	}

	result, err := h.service.Travel(r.Context(), id, req.CorridorID)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	status := http.StatusCreated
	if result.VoteSession != "" {
		status = http.StatusAccepted
	}
	response.Success(w, status, result)
}

func (h *TravelHandler) EmergencyExit(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "emergency_exit")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	id, err := userID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	result, err := h.service.EmergencyExit(r.Context(), id)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, result)
}

func (h *TravelHandler) Dock(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "dock")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	id, err := userID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	if err := h.service.Dock(r.Context(), id); err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]bool{"docked": true})
}

func (h *TravelHandler) Undock(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "undock")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	id, err := userID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	var req undockRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}

	result, err := h.service.Undock(r.Context(), id, req.Confirm)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	status := http.StatusOK
	if !result.Undocked {
		status = http.StatusConflict
	}
	response.Success(w, status, result)
}
