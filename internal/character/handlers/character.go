package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"corridor-server/internal/character"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/response"
)

type CharacterHandler struct {
	service *character.Service
}

func NewCharacterHandler(service *character.Service) *CharacterHandler {
	return &CharacterHandler{service: service}
}

func (h *CharacterHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "create_character")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid user ID format", err))
		return
	}

	var req character.CreateRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}

	created, err := h.service.Create(r.Context(), userID, req)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusCreated, created)
}

func (h *CharacterHandler) Get(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "get_character")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid user ID format", err))
		return
	}

	profile, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, profile)
}
