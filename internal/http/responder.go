package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/worktrack/internal/application"
)

var (
	errBadRequestBody = errors.New("Request body is not valid JSON.")
	errInvalidDate    = errors.New("Dates must use the YYYY-MM-DD format.")
	errInvalidStatus  = errors.New("Unknown session status.")
)

type responder struct {
	logger *slog.Logger
}

func newResponder(logger *slog.Logger) responder {
	if logger == nil {
		logger = slog.Default()
	}
	return responder{logger: logger}
}

func (r responder) writeJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	if w == nil {
		return
	}

	if status == http.StatusNoContent || payload == nil {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		r.loggerFor(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (r responder) writeError(ctx context.Context, w http.ResponseWriter, status int, err error) {
	message := statusMessage(status)
	if err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			message = msg
		}
		r.loggerFor(ctx).WarnContext(ctx, "request rejected", "status", status, "error", err)
	}

	r.writeJSON(ctx, w, status, errorResponse{Message: message})
}

// handleServiceError maps application errors onto status codes.
func (r responder) handleServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		r.writeError(ctx, w, http.StatusInternalServerError, errors.New("unknown error"))
		return
	}

	var denied *application.TrackingNotAllowedError
	if errors.As(err, &denied) {
		r.writeJSON(ctx, w, http.StatusForbidden, errorResponse{
			ErrorCode:         "TRACKING_NOT_ALLOWED",
			Message:           "Tracking is not permitted at this time.",
			NextAllowedWindow: denied.NextWindow,
		})
		return
	}

	var vErr *application.ValidationError
	if errors.As(err, &vErr) {
		r.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{
			ErrorCode: "VALIDATION_FAILED",
			Message:   "The request contains invalid fields.",
			Errors:    vErr.FieldErrors,
		})
		return
	}

	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		r.loggerFor(ctx).ErrorContext(ctx, "request failed", "error", err, "error_kind", application.ErrorKind(err))
	}
	r.writeJSON(ctx, w, status, errorResponse{ErrorCode: code, Message: message})
}

func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, application.ErrUserNotFound):
		return http.StatusNotFound, "USER_NOT_FOUND", "Employee not found."
	case errors.Is(err, application.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found."
	case errors.Is(err, application.ErrRuleNotFound):
		return http.StatusNotFound, "RULE_NOT_FOUND", "Login rule not found."
	case errors.Is(err, application.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", statusMessage(http.StatusNotFound)
	case errors.Is(err, application.ErrAlreadyStopped):
		return http.StatusConflict, "SESSION_ALREADY_STOPPED", "Session is already stopped."
	case errors.Is(err, application.ErrDuplicateName):
		return http.StatusConflict, "DUPLICATE_NAME", "A login rule with this name already exists."
	case errors.Is(err, application.ErrAlreadyExists):
		return http.StatusConflict, "ALREADY_EXISTS", "The resource already exists."
	case errors.Is(err, application.ErrRuleInUse):
		return http.StatusConflict, "RULE_IN_USE", "The login rule is assigned to employees."
	case errors.Is(err, application.ErrCannotDeleteDefault):
		return http.StatusConflict, "DEFAULT_RULE", "The default login rule cannot be deleted."
	case errors.Is(err, application.ErrDefaultRuleImmutable):
		return http.StatusConflict, "DEFAULT_RULE", "The default login rule must stay ALL_DAYS."
	case errors.Is(err, application.ErrConflict):
		return http.StatusConflict, "CONFLICT", statusMessage(http.StatusConflict)
	case errors.Is(err, application.ErrInvalidRuleConfiguration):
		return http.StatusBadRequest, "INVALID_RULE", err.Error()
	case errors.Is(err, application.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid user ID or password."
	default:
		return http.StatusInternalServerError, "INTERNAL", statusMessage(http.StatusInternalServerError)
	}
}

func (r responder) loggerFor(ctx context.Context) *slog.Logger {
	if logger := LoggerFromContext(ctx); logger != nil {
		return logger
	}
	return r.logger
}

func statusMessage(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "The request is not valid."
	case http.StatusUnauthorized:
		return "Authentication failed."
	case http.StatusForbidden:
		return "This operation is not permitted."
	case http.StatusNotFound:
		return "The requested resource was not found."
	case http.StatusConflict:
		return "The request conflicts with the current state of the resource."
	case http.StatusTooManyRequests:
		return "Too many requests. Please try again later."
	default:
		return "An internal server error occurred."
	}
}

type errorResponse struct {
	ErrorCode         string            `json:"errorCode,omitempty"`
	Message           string            `json:"message"`
	NextAllowedWindow string            `json:"nextAllowedWindow,omitempty"`
	Errors            map[string]string `json:"errors,omitempty"`
}
