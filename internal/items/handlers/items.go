package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"corridor-server/internal/items"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/response"
)

type ItemHandler struct {
	service *items.Service
}

func NewItemHandler(service *items.Service) *ItemHandler {
	return &ItemHandler{service: service}
}

func userID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("user_id"), 10, 64)
	if err != nil {
		return 0, errors.WrapValidation("invalid user ID format", err)
	}
	return id, nil
}

func (h *ItemHandler) Use(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "use_item")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	id, err := userID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	var req items.UseRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}
	if req.ItemID <= 0 {
		response.Error(w, r, logger, errors.Validation("item_id is required"))
		return
	}

	result, err := h.service.Use(r.Context(), id, req)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, result)
}

func (h *ItemHandler) Sell(w http.ResponseWriter, r *http.Request) {
	logger := slog.With("handler", "sell_item")

	if r.Method != http.MethodPost {
		response.Error(w, r, logger, errors.MethodNotAllowed(r.Method))
		return
	}

	id, err := userID(r)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	req := items.SellRequest{Quantity: 1}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, logger, errors.WrapValidation("invalid JSON in request body", err))
		return
	}

	sale, err := h.service.Sell(r.Context(), id, req)
	if err != nil {
		response.Error(w, r, logger, err)
		return
	}

	response.Success(w, http.StatusOK, sale)
}
