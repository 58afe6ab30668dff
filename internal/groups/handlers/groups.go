package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"corridor-server/internal/character"
	"corridor-server/internal/groups"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/response"

	"github.com/google/uuid"
)

// Characters resolves the group a player currently belongs to.
type Characters interface {
	Get(ctx context.Context, userID int64) (*character.Character, error)
}

type GroupHandler struct {
	service    *groups.Service
	characters Characters
}

func NewGroupHandler(service *groups.Service, characters Characters) *GroupHandler {
	return &GroupHandler{service: service, characters: characters}
}

type createRequest struct {
	Name string `json:"name"`
}

type voteRequest struct {
	Vote *bool `json:"vote"`
}

func pathID(r *http.Request, name, label string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, errors.WrapValidation("invalid "+label+" format", err)
	}
	return id, nil
}

func (h *GroupHandler) member(r *http.Request) (int64, *int64, error) {
	userID, err := pathID(r, "user_id", "user ID")
	if err != nil {
		return 0, nil, err
	}
	c, err := h.characters.Get(r.Context(), userID)
	if err != nil {
		return 0, nil, err
	}
	return userID, c.GroupID, nil
}

func (h *GroupHandler) Create(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "create_group")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, current, err := h.member(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	var req createRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}

	group, err := h.service.Create(r.Context(), userID, req.Name, current)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusCreated, group)
}

func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "join_group")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, current, err := h.member(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}
	groupID, err := pathID(r, "group_id", "group ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	if err := h.service.Join(r.Context(), userID, current, groupID); err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]int64{"group_id": groupID})
}

func (h *GroupHandler) Leave(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "leave_group")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, current, err := h.member(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	if err := h.service.Leave(r.Context(), userID, current); err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]bool{"left": true})
}

func (h *GroupHandler) Vote(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "cast_vote")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, current, err := h.member(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}
	sessionID, err := uuid.Parse(r.PathValue("session_id"))
	if err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid session ID format", err))
		return
	}

	var req voteRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}
	if req.Vote == nil {
		response.Error(w, r, logger, errors.Validation("vote is required"))
		return
	}

	result, err := h.service.Cast(r.Context(), userID, current, sessionID, *req.Vote)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, result)
}
