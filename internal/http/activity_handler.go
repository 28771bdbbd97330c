package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/worktrack/internal/application"
)

type activityService interface {
	LogActivity(ctx context.Context, params application.LogActivityParams) (application.ActivityLog, error)
	ListActivityLogs(ctx context.Context, sessionID string) ([]application.ActivityLog, error)
}

type ActivityHandler struct {
	service   activityService
	responder responder
	logger    *slog.Logger
}

func NewActivityHandler(service activityService, logger *slog.Logger) *ActivityHandler {
	base := defaultLogger(logger)
	return &ActivityHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *ActivityHandler) Log(w http.ResponseWriter, r *http.Request) {
	var req logActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlerLogger(r.Context(), h.logger, "ActivityHandler", "Log", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode activity request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	entry, err := h.service.LogActivity(r.Context(), application.LogActivityParams{
		SessionID: req.SessionID,
		Status:    application.ActivityStatus(strings.ToUpper(strings.TrimSpace(req.ActivityStatus))),
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toActivityDTO(entry))
}

func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.ListActivityLogs(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	out := make([]activityDTO, 0, len(logs))
	for _, l := range logs {
		out = append(out, toActivityDTO(l))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

type logActivityRequest struct {
	SessionID      string `json:"sessionId"`
	ActivityStatus string `json:"activityStatus"`
	Metadata       string `json:"metadata"`
}

type activityDTO struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"sessionId"`
	LoggedAt       time.Time `json:"timestamp"`
	ActivityStatus string    `json:"activityStatus"`
	Metadata       string    `json:"metadata,omitempty"`
}

func toActivityDTO(l application.ActivityLog) activityDTO {
	return activityDTO{
		ID:             l.ID,
		SessionID:      l.SessionID,
		LoggedAt:       l.LoggedAt,
		ActivityStatus: string(l.Status),
		Metadata:       l.Metadata,
	}
}
