package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/response"
	"corridor-server/internal/stats"
)

type StatsHandler struct {
	service *stats.Service
}

func NewStatsHandler(service *stats.Service) *StatsHandler {
	return &StatsHandler{service: service}
}

func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		return 0, errors.WrapValidation("invalid user ID format", err)
	}
	return id, nil
}

func (h *StatsHandler) Sheet(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "stats_sheet")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	id, err := userID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	sheet, err := h.service.Sheet(r.Context(), id)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, sheet)
}

type equipRequest struct {
	ItemID int64 `json:"item_id"`
}

func (h *StatsHandler) Equip(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "equip_item")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	id, err := userID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	var req equipRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}

	equipped, err := h.service.Equip(r.Context(), id, req.ItemID)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusCreated, equipped)
}

func (h *StatsHandler) Unequip(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "unequip_item")

	if r.Method != http.MethodDelete {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	id, err := userID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	item, err := h.service.Unequip(r.Context(), id, r.PathValue("slot"))
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, item)
}
