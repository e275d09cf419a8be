package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/DrOksusu/dba-portal-auth/pkg/errors"
	"github.com/DrOksusu/dba-portal-auth/pkg/logger"
	"github.com/DrOksusu/dba-portal-auth/pkg/validator"
)

// Response is the JSON envelope of every API response.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of Response.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// sentinelResponses maps bare sentinels to the code and message a client sees.
var sentinelResponses = []struct {
	err     error
	code    string
	message string
}{
	{apperrors.ErrNotFound, "NOT_FOUND", "resource not found"},
	{apperrors.ErrAlreadyExists, "ALREADY_EXISTS", "resource already exists"},
	{apperrors.ErrConflict, "CONFLICT", "conflict"},
	{apperrors.ErrUnauthorized, "UNAUTHORIZED", "unauthorized"},
	{apperrors.ErrForbidden, "FORBIDDEN", "forbidden"},
	{apperrors.ErrRateLimited, "RATE_LIMITED", "too many requests"},
	{apperrors.ErrServiceUnavail, "SERVICE_UNAVAILABLE", "service temporarily unavailable"},
}

// WriteError maps err onto the response envelope. AppErrors keep their own
// code and message; bare sentinels get a generic one; anything else is a 500.
// Server-side failures are logged with the request-scoped logger when one is
// present, otherwise with fallback. The cause never reaches the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	requestID := logger.CorrelationIDFromContext(r.Context())
	status := apperrors.HTTPStatus(err)

	code, message := "INTERNAL_ERROR", "an internal error occurred"
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		code, message = appErr.Code, appErr.Message
	case errors.Is(err, apperrors.ErrInvalidInput):
		code, message = "INVALID_INPUT", err.Error()
	default:
		for _, s := range sentinelResponses {
			if errors.Is(err, s.err) {
				code, message = s.code, s.message
				break
			}
		}
	}

	if status >= http.StatusInternalServerError {
		l := logger.FromContext(r.Context())
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.ErrorContext(r.Context(), "request failed",
			slog.Int("status", status),
			slog.String("code", code),
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{Code: code, Message: message, RequestID: requestID},
	})
}

// WriteValidationError writes a 400. Validator failures carry per-field
// messages; any other error is reported as INVALID_INPUT.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}
