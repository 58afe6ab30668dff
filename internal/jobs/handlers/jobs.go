package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"corridor-server/internal/jobs"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/response"
)

type JobHandler struct {
	service *jobs.Service
}

func NewJobHandler(service *jobs.Service) *JobHandler {
	return &JobHandler{service: service}
}

type acceptRequest struct {
	JobID int64  `json:"job_id"`
	Title string `json:"title"`
}

func pathID(r *http.Request, name, label string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0, errors.WrapValidation("invalid "+label+" format", err)
	}
	return id, nil
}

func (h *JobHandler) Board(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "job_board")

	if r.Method != http.MethodGet {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	locationID, err := pathID(r, "location_id", "location ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	var viewer *int64
	if raw := r.URL.Query().Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.Error(w, r, logger, errors.WrapValidation("invalid user ID format", err))
			return
		}
		viewer = &id
	}

	board, err := h.service.Board(r.Context(), locationID, viewer)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]any{
		"location_id": locationID,
		"jobs":        board,
	})
}

func (h *JobHandler) Accept(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "accept_job")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, err := pathID(r, "user_id", "user ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	var req acceptRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.JobID <= 0 && req.Title == "" {
		response.Error(w, r, logger, errors.Validation("job_id or title is required"))
		return
	}

	result, err := h.service.Accept(r.Context(), userID, req.JobID, req.Title)
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

func (h *JobHandler) Complete(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "complete_job")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, err := pathID(r, "user_id", "user ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	outcome, err := h.service.Complete(r.Context(), userID)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	status := http.StatusOK
	if outcome.Status == jobs.StatusAwaitingFinalization {
		status = http.StatusAccepted
	}
	response.Success(w, status, outcome)
}

func (h *JobHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "abandon_job")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, err := pathID(r, "user_id", "user ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	job, err := h.service.Abandon(r.Context(), userID)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, map[string]any{
		"abandoned": true,
		"job_id":    job.ID,
		"title":     job.Title,
	})
}

// ForceTick is the admin hook that runs one tracker pass for a user.
func (h *JobHandler) ForceTick(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "force_job_tick")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	userID, err := pathID(r, "user_id", "user ID")
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	result, err := h.service.ForceTick(r.Context(), userID)
	if err != nil {
		response.Error(w, r, logger, errors.WrapInternal("failed to run job tick", err))
		return
	}

	response.Success(w, http.StatusOK, result)
}
