package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/worktrack/internal/application"
	"github.com/example/worktrack/internal/rules"
)

type employeeService interface {
	CreateEmployee(ctx context.Context, params application.CreateEmployeeParams) (application.User, error)
	UpdateEmployee(ctx context.Context, params application.UpdateEmployeeParams) (application.User, error)
	DeleteEmployee(ctx context.Context, userID string) error
	GetEmployee(ctx context.Context, userID string) (application.User, error)
	ListEmployees(ctx context.Context) ([]application.User, error)
}

type statsService interface {
	EmployeeStats(ctx context.Context, userID string, from, to time.Time) (application.EmployeeStats, error)
}

type trackingRules interface {
	GetRule(ctx context.Context, ruleID string) (application.RuleUsage, error)
	DefaultRule(ctx context.Context) (rules.Rule, error)
	CheckTracking(ctx context.Context, user application.User, now time.Time) (application.TrackingDecision, error)
}

type EmployeeHandler struct {
	service   employeeService
	stats     statsService
	rules     trackingRules
	location  *time.Location
	now       func() time.Time
	responder responder
	logger    *slog.Logger
}

// NewEmployeeHandler builds the employee endpoints. Stats dates are read in
// loc; a nil loc means time.Local.
func NewEmployeeHandler(service employeeService, stats statsService, trackingRules trackingRules, loc *time.Location, now func() time.Time, logger *slog.Logger) *EmployeeHandler {
	base := defaultLogger(logger)
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &EmployeeHandler{
		service:   service,
		stats:     stats,
		rules:     trackingRules,
		location:  loc,
		now:       now,
		responder: newResponder(base),
		logger:    base,
	}
}

func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListEmployees(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]employeeDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toEmployeeDTO(u))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, employeeListResponse{Employees: out, Total: len(out)})
}

func (h *EmployeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetEmployee(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEmployeeDTO(user))
}

func (h *EmployeeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if !h.decode(w, r, "Create", &req) {
		return
	}
	user, err := h.service.CreateEmployee(r.Context(), application.CreateEmployeeParams{
		UserID:   req.UserID,
		Password: req.Password,
		Input:    req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toEmployeeDTO(user))
}

func (h *EmployeeHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if !h.decode(w, r, "Update", &req) {
		return
	}
	user, err := h.service.UpdateEmployee(r.Context(), application.UpdateEmployeeParams{
		UserID:   chi.URLParam(r, "userID"),
		Password: req.Password,
		Input:    req.toInput(),
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toEmployeeDTO(user))
}

func (h *EmployeeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteEmployee(r.Context(), chi.URLParam(r, "userID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

// Stats summarises sessions started between from and to, both inclusive
// calendar dates. The range defaults to the last seven days.
func (h *EmployeeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	today := h.now().In(h.location)
	to := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, h.location)
	from := to.AddDate(0, 0, -6)

	query := r.URL.Query()
	if value := strings.TrimSpace(query.Get("from")); value != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, value, h.location)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		from = parsed
	}
	if value := strings.TrimSpace(query.Get("to")); value != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, value, h.location)
		if err != nil {
			h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidDate)
			return
		}
		to = parsed
	}

	stats, err := h.stats.EmployeeStats(r.Context(), chi.URLParam(r, "userID"), from, to.AddDate(0, 0, 1))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	sessions := make([]sessionDTO, 0, len(stats.Sessions))
	for _, s := range stats.Sessions {
		sessions = append(sessions, toSessionDTO(s))
	}
	resp := statsResponse{
		UserID:      stats.UserID,
		From:        from.Format(time.DateOnly),
		To:          to.Format(time.DateOnly),
		WorkingDays: stats.WorkingDays,
		TotalHours:  stats.TotalHours,
		Sessions:    sessions,
	}
	if stats.ActiveSession != nil {
		active := toSessionDTO(*stats.ActiveSession)
		resp.ActiveSession = &active
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

// LoginRule reports the employee's effective rule and whether tracking is
// allowed right now. Employees without a rule fall back to the default rule.
func (h *EmployeeHandler) LoginRule(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetEmployee(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	var rule rules.Rule
	if user.RuleID != nil {
		usage, err := h.rules.GetRule(r.Context(), *user.RuleID)
		if err != nil && !errors.Is(err, application.ErrRuleNotFound) {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
		rule = usage.Rule
	}
	if rule.ID == "" {
		if rule, err = h.rules.DefaultRule(r.Context()); err != nil {
			h.responder.handleServiceError(r.Context(), w, err)
			return
		}
	}

	decision, err := h.rules.CheckTracking(r.Context(), user, h.now())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	h.responder.writeJSON(r.Context(), w, http.StatusOK, loginRuleResponse{
		Rule:              toRuleDTO(rule, 0),
		TrackingAllowed:   decision.Allowed,
		NextAllowedWindow: decision.NextWindow,
	})
}

func (h *EmployeeHandler) decode(w http.ResponseWriter, r *http.Request, operation string, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		handlerLogger(r.Context(), h.logger, "EmployeeHandler", operation, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode employee request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return false
	}
	return true
}

type employeeRequest struct {
	UserID      string  `json:"userId"`
	Password    string  `json:"password"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	JobRole     string  `json:"jobRole"`
	PhoneNumber *string `json:"phoneNumber"`
	RuleID      *string `json:"loginRuleId"`
	Status      string  `json:"status"`
}

func (req employeeRequest) toInput() application.EmployeeInput {
	return application.EmployeeInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		JobRole:     req.JobRole,
		PhoneNumber: req.PhoneNumber,
		RuleID:      req.RuleID,
		Status:      application.UserStatus(strings.ToUpper(strings.TrimSpace(req.Status))),
	}
}

type employeeDTO struct {
	UserID      string    `json:"userId"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	JobRole     string    `json:"jobRole"`
	PhoneNumber *string   `json:"phoneNumber,omitempty"`
	RuleID      *string   `json:"loginRuleId,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toEmployeeDTO(u application.User) employeeDTO {
	return employeeDTO{
		UserID:      u.UserID,
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		JobRole:     u.JobRole,
		PhoneNumber: u.PhoneNumber,
		RuleID:      u.RuleID,
		Status:      string(u.Status),
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}

type employeeListResponse struct {
	Employees []employeeDTO `json:"employees"`
	Total     int           `json:"total"`
}

type statsResponse struct {
	UserID        string       `json:"userId"`
	From          string       `json:"from"`
	To            string       `json:"to"`
	WorkingDays   int          `json:"workingDays"`
	TotalHours    float64      `json:"totalHours"`
	ActiveSession *sessionDTO  `json:"activeSession,omitempty"`
	Sessions      []sessionDTO `json:"sessions"`
}

type loginRuleResponse struct {
	Rule              ruleDTO `json:"rule"`
	TrackingAllowed   bool    `json:"trackingAllowed"`
	NextAllowedWindow string  `json:"nextAllowedWindow,omitempty"`
}
