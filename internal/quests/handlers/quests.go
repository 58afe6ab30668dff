package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"corridor-server/internal/quests"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/response"
)

type QuestHandler struct {
	service *quests.Service
}

func NewQuestHandler(service *quests.Service) *QuestHandler {
	return &QuestHandler{service: service}
}

func pathID(r *http.Request, name, label string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, errors.WrapValidation("invalid "+label+" format", err)
	}
	return id, nil
}

func (h *QuestHandler) Available(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "available_quests")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	locationID, err := pathID(r, "location_id", "location ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	list, err := h.service.Available(r.Context(), locationID)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]any{
		"location_id": locationID,
		"quests":      list,
	})
}

func (h *QuestHandler) Accept(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "accept_quest")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, err := pathID(r, "user_id", "user ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}
	questID, err := pathID(r, "quest_id", "quest ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	q, err := h.service.Accept(r.Context(), userID, questID)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusCreated, q)
}

func (h *QuestHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "abandon_quest")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, err := pathID(r, "user_id", "user ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	p, err := h.service.Abandon(r.Context(), userID)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, p)
}

func (h *QuestHandler) Status(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "quest_status")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, err := pathID(r, "user_id", "user ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	view, err := h.service.Status(r.Context(), userID)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, view)
}

func (h *QuestHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "create_quest")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	var req quests.CreateRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}

	q, err := h.service.Create(r.Context(), req)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusCreated, q)
}

func (h *QuestHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "toggle_quest")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	questID, err := pathID(r, "quest_id", "quest ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	active, err := h.service.Toggle(r.Context(), questID)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]any{
		"quest_id":  questID,
		"is_active": active,
	})
}
