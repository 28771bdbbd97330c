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

type sessionService interface {
	StartSession(ctx context.Context, params application.StartSessionParams) (application.WorkSession, error)
	StopSession(ctx context.Context, sessionID string) (application.WorkSession, error)
	GetSession(ctx context.Context, sessionID string) (application.WorkSession, error)
	ListSessions(ctx context.Context, filter application.SessionFilter) ([]application.WorkSession, error)
	ActiveSession(ctx context.Context, userID string) (application.WorkSession, error)
}

type employeeLookup interface {
	GetEmployee(ctx context.Context, userID string) (application.User, error)
}

// StartRecorder counts session start outcomes.
type StartRecorder interface {
	RecordSessionStart(outcome string)
}

type SessionHandler struct {
	service   sessionService
	employees employeeLookup
	recorder  StartRecorder
	responder responder
	logger    *slog.Logger
}

func NewSessionHandler(service sessionService, employees employeeLookup, recorder StartRecorder, logger *slog.Logger) *SessionHandler {
	base := defaultLogger(logger)
	return &SessionHandler{service: service, employees: employees, recorder: recorder, responder: newResponder(base), logger: base}
}

func (h *SessionHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "SessionHandler", operation, attrs...)
}

func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log(r.Context(), "Start", "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode start request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	logger := h.log(r.Context(), "Start", "user_id", req.UserID)
	session, err := h.service.StartSession(r.Context(), application.StartSessionParams{
		UserID:                   req.UserID,
		TaskName:                 req.TaskName,
		EstimatedDurationMinutes: req.EstimatedDurationMinutes,
	})
	if err != nil {
		h.recordStart(startOutcome(err))
		logger.InfoContext(r.Context(), "session start rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.recordStart("started")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, h.enrich(r.Context(), session))
}

func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.service.StopSession(r.Context(), sessionID)
	if err != nil {
		h.log(r.Context(), "Stop", "session_id", sessionID).InfoContext(r.Context(), "session stop rejected", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, h.enrich(r.Context(), session))
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, h.enrich(r.Context(), session))
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := application.SessionFilter{UserID: strings.TrimSpace(query.Get("userId"))}
	if status := strings.ToUpper(strings.TrimSpace(query.Get("status"))); status != "" {
		switch application.SessionStatus(status) {
		case application.SessionActive, application.SessionStopped:
			filter.Status = application.SessionStatus(status)
		default:
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidStatus)
			return
		}
	}

	sessions, err := h.service.ListSessions(r.Context(), filter)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	names := make(map[string]application.User)
	out := make([]sessionDTO, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, h.enrichCached(r.Context(), session, names))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

// Active returns the employee's running session.
func (h *SessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.ActiveSession(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, h.enrich(r.Context(), session))
}

func (h *SessionHandler) enrich(ctx context.Context, session application.WorkSession) sessionDTO {
	return h.enrichCached(ctx, session, nil)
}

// enrichCached adds the employee's name. Lookup failures leave the name empty.
func (h *SessionHandler) enrichCached(ctx context.Context, session application.WorkSession, cache map[string]application.User) sessionDTO {
	dto := toSessionDTO(session)
	if h.employees == nil {
		return dto
	}

	user, ok := cache[session.UserID]
	if !ok {
		found, err := h.employees.GetEmployee(ctx, session.UserID)
		if err != nil {
			return dto
		}
		user = found
		if cache != nil {
			cache[session.UserID] = user
		}
	}
	dto.FirstName = user.FirstName
	dto.LastName = user.LastName
	return dto
}

func (h *SessionHandler) recordStart(outcome string) {
	if h.recorder != nil {
		h.recorder.RecordSessionStart(outcome)
	}
}

func startOutcome(err error) string {
	switch application.ErrorKind(err) {
	case "tracking_not_allowed":
		return "denied"
	case "validation", "user_not_found":
		return "rejected"
	default:
		return "error"
	}
}

type startSessionRequest struct {
	UserID                   string `json:"userId"`
	TaskName                 string `json:"taskName"`
	EstimatedDurationMinutes *int64 `json:"estimatedDurationMinutes"`
}

type sessionDTO struct {
	ID                       string     `json:"id"`
	UserID                   string     `json:"userId"`
	FirstName                string     `json:"firstName,omitempty"`
	LastName                 string     `json:"lastName,omitempty"`
	TaskName                 string     `json:"taskName"`
	EstimatedDurationMinutes *int64     `json:"estimatedDurationMinutes,omitempty"`
	StartTime                time.Time  `json:"startTime"`
	EndTime                  *time.Time `json:"endTime,omitempty"`
	Status                   string     `json:"status"`
	IdleWarningSent          bool       `json:"idleWarningSent"`
	LastIdleCheckTime        *time.Time `json:"lastIdleCheckTime,omitempty"`
}

func toSessionDTO(s application.WorkSession) sessionDTO {
	return sessionDTO{
		ID:                       s.ID,
		UserID:                   s.UserID,
		TaskName:                 s.TaskName,
		EstimatedDurationMinutes: s.EstimatedDurationMinutes,
		StartTime:                s.StartTime,
		EndTime:                  s.EndTime,
		Status:                   string(s.Status),
		IdleWarningSent:          s.IdleWarningSent,
		LastIdleCheckTime:        s.LastIdleCheckTime,
	}
}
