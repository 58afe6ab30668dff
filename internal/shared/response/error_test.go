package response

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"corridor-server/internal/shared/errors"
)

func TestErrorWritesReasonAndStatus(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodPost, "/api/users/1/travel", nil)
	rec := httptest.NewRecorder()

	Error(rec, req, logger, errors.Precondition(errors.ReasonInsufficientResources, "not enough fuel"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d want=%d", rec.Code, http.StatusUnprocessableEntity)
	}

	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Reason != "insufficient_resources" || body.Error != "precondition" || body.Message != "not enough fuel" {
		t.Fatalf("body=%+v", body)
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		errType errors.ErrorType
		want    int
	}{
		{errors.ErrorTypeNotFound, http.StatusNotFound},
		{errors.ErrorTypeValidation, http.StatusBadRequest},
		{errors.ErrorTypeConflict, http.StatusConflict},
		{errors.ErrorTypeUnauthorized, http.StatusUnauthorized},
		{errors.ErrorTypeForbidden, http.StatusForbidden},
		{errors.ErrorTypeMethodNotAllowed, http.StatusMethodNotAllowed},
		{errors.ErrorTypeExternal, http.StatusServiceUnavailable},
		{errors.ErrorTypeInternal, http.StatusInternalServerError},
		{errors.ErrorType("unknown"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.errType); got != tc.want {
			t.Fatalf("%s: status=%d want=%d", tc.errType, got, tc.want)
		}
	}
}

func TestSuccessEncodesBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]int{"job_id": 12})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d want=%d", rec.Code, http.StatusCreated)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}
	var body map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["job_id"] != 12 {
		t.Fatalf("job_id=%d want=12", body["job_id"])
	}
}

func TestInternalDetailIsHidden(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := httptest.NewRecorder()

	Error(rec, httptest.NewRequest(http.MethodPost, "/api/users/1/jobs/complete", nil), logger,
		errors.WrapInternal("failed to complete job", io.ErrUnexpectedEOF))

	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Code != http.StatusInternalServerError || body.Message != internalMessage {
		t.Fatalf("code=%d body=%+v", rec.Code, body)
	}
}
