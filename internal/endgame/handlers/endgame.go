package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"corridor-server/internal/endgame"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/response"
)

type EndgameHandler struct {
	service *endgame.Service
}

func NewEndgameHandler(service *endgame.Service) *EndgameHandler {
	return &EndgameHandler{service: service}
}

// Endgame serves GET (status), POST (setup) and DELETE (cancel).
func (h *EndgameHandler) Endgame(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.status(w, r)
	case http.MethodPost:
		h.setup(w, r)
	case http.MethodDelete:
		h.cancel(w, r)
	default:
		response.Error(w, r, slog.With("handler", "endgame"), errors.MethodNotAllowed(r.Method))
	}
}

func (h *EndgameHandler) setup(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "setup_endgame")

	var req endgame.SetupRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}

	st, err := h.service.Configure(r.Context(), req)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	logger.Info("Endgame configured", "start_time", st.Config.StartTime, "length_minutes", st.Config.LengthMinutes)
	response.Success(w, http.StatusCreated, st)
}

func (h *EndgameHandler) status(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "endgame_status")

	st, err := h.service.Status(r.Context())
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}
	response.Success(w, http.StatusOK, st)
}

func (h *EndgameHandler) cancel(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "cancel_endgame")

	if err := h.service.Cancel(r.Context()); err != nil {
		response.Error(w, r, logger, err)
		return
	}
	response.Success(w, http.StatusOK, map[string]any{"cancelled": true})
}
