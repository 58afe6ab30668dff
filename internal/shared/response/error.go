// Package response writes the JSON envelopes the command gateway returns to
// chat adapters.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"corridor-server/internal/shared/errors"
)

// internalMessage replaces the detail of server-side failures so adapters
// never relay storage errors to players.
const internalMessage = "the simulation could not complete that command, try again shortly"

// ErrorResponse is the body of every failed command. Reason is set for
// precondition failures the adapter should render as a game message.
type ErrorResponse struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

var statusByType = map[errors.ErrorType]int{
	errors.ErrorTypeNotFound:         http.StatusNotFound,
	errors.ErrorTypeValidation:       http.StatusBadRequest,
	errors.ErrorTypeConflict:         http.StatusConflict,
	errors.ErrorTypePrecondition:     http.StatusUnprocessableEntity,
	errors.ErrorTypeMethodNotAllowed: http.StatusMethodNotAllowed,
	errors.ErrorTypeUnauthorized:     http.StatusUnauthorized,
	errors.ErrorTypeForbidden:        http.StatusForbidden,
	errors.ErrorTypeExternal:         http.StatusServiceUnavailable,
	errors.ErrorTypeInternal:         http.StatusInternalServerError,
}

func statusFor(t errors.ErrorType) int {
	if code, ok := statusByType[t]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// Error logs err and writes it as an ErrorResponse. Handlers log command
// failures only through here.
func Error(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	errorType := errors.GetType(err)
	reason := errors.GetReason(err)
	code := statusFor(errorType)

	logError(logger, r, err, errorType, reason, code)

	message := err.Error()
	if code >= http.StatusInternalServerError {
		message = internalMessage
	}
	write(w, code, ErrorResponse{
		Error:   string(errorType),
		Reason:  string(reason),
		Message: message,
		Code:    code,
	})
}

func logError(logger *slog.Logger, r *http.Request, err error, errorType errors.ErrorType, reason errors.Reason, code int) {
	attrs := []any{
		"method", r.Method,
		"path", r.URL.Path,
		"error_type", errorType,
		"status_code", code,
		"error", err,
	}
	if userID := r.PathValue("user_id"); userID != "" {
		attrs = append(attrs, "user_id", userID)
	}

	switch errorType {
	case errors.ErrorTypePrecondition:
		// rejected by game rules, routine
		logger.Debug("Command refused", append(attrs, "reason", reason)...)
	case errors.ErrorTypeNotFound, errors.ErrorTypeValidation, errors.ErrorTypeMethodNotAllowed:
		logger.Debug("Bad command", attrs...)
	case errors.ErrorTypeConflict:
		logger.Info("Command conflicted", attrs...)
	case errors.ErrorTypeUnauthorized, errors.ErrorTypeForbidden:
		logger.Warn("Gateway authorization failed", append(attrs, "remote_addr", r.RemoteAddr)...)
	case errors.ErrorTypeExternal:
		logger.Error("Dependency unavailable", attrs...)
	default:
		logger.Error("Command failed", attrs...)
	}
}

// Success writes data as JSON with the given status. A nil data writes the
// status only.
func Success(w http.ResponseWriter, statusCode int, data any) {
	if data == nil {
		w.WriteHeader(statusCode)
		return
	}
	write(w, statusCode, data)
}

func write(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	// the status is already sent, nothing useful to do on failure
	_ = json.NewEncoder(w).Encode(body)
}
