package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/worktrack/internal/application"
	"github.com/example/worktrack/internal/rules"
)

type ruleService interface {
	CreateRule(ctx context.Context, input application.RuleInput) (rules.Rule, error)
	UpdateRule(ctx context.Context, params application.UpdateRuleParams) (rules.Rule, error)
	DeleteRule(ctx context.Context, ruleID string) error
	GetRule(ctx context.Context, ruleID string) (application.RuleUsage, error)
	ListRules(ctx context.Context) ([]application.RuleUsage, error)
}

type RuleHandler struct {
	service   ruleService
	responder responder
	logger    *slog.Logger
}

func NewRuleHandler(service ruleService, logger *slog.Logger) *RuleHandler {
	base := defaultLogger(logger)
	return &RuleHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *RuleHandler) List(w http.ResponseWriter, r *http.Request) {
	usages, err := h.service.ListRules(r.Context())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	out := make([]ruleDTO, 0, len(usages))
	for _, usage := range usages {
		out = append(out, toRuleDTO(usage.Rule, usage.AssignedEmployees))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, out)
}

func (h *RuleHandler) Get(w http.ResponseWriter, r *http.Request) {
	usage, err := h.service.GetRule(r.Context(), chi.URLParam(r, "ruleID"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRuleDTO(usage.Rule, usage.AssignedEmployees))
}

func (h *RuleHandler) Create(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decode(w, r, "Create")
	if !ok {
		return
	}
	rule, err := h.service.CreateRule(r.Context(), input)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toRuleDTO(rule, 0))
}

func (h *RuleHandler) Update(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decode(w, r, "Update")
	if !ok {
		return
	}
	ruleID := chi.URLParam(r, "ruleID")
	if _, err := h.service.UpdateRule(r.Context(), application.UpdateRuleParams{RuleID: ruleID, Input: input}); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	usage, err := h.service.GetRule(r.Context(), ruleID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toRuleDTO(usage.Rule, usage.AssignedEmployees))
}

func (h *RuleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRule(r.Context(), chi.URLParam(r, "ruleID")); err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusNoContent, nil)
}

func (h *RuleHandler) decode(w http.ResponseWriter, r *http.Request, operation string) (application.RuleInput, bool) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handlerLogger(r.Context(), h.logger, "RuleHandler", operation, "error_kind", "bad_request").WarnContext(r.Context(), "failed to decode rule request", "error", err)
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return application.RuleInput{}, false
	}
	input, vErr := req.toInput()
	if vErr != nil {
		h.responder.handleServiceError(r.Context(), w, vErr)
		return application.RuleInput{}, false
	}
	return input, true
}

type scheduleDTO struct {
	DayOfWeek string  `json:"dayOfWeek"`
	StartTime *string `json:"startTime,omitempty"`
	EndTime   *string `json:"endTime,omitempty"`
	IsActive  *bool   `json:"isActive,omitempty"`
}

type ruleRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	RuleType    string        `json:"ruleType"`
	Schedules   []scheduleDTO `json:"schedules"`
}

// toInput parses clock values. Rule type and schedule shape are validated by
// the rule service.
func (req ruleRequest) toInput() (application.RuleInput, *application.ValidationError) {
	fieldErrors := make(map[string]string)
	schedules := make([]rules.Schedule, 0, len(req.Schedules))
	for i, s := range req.Schedules {
		schedule := rules.Schedule{DayOfWeek: s.DayOfWeek, Active: s.IsActive == nil || *s.IsActive}
		if s.StartTime != nil && *s.StartTime != "" {
			t, err := rules.ParseTimeOfDay(*s.StartTime)
			if err != nil {
				fieldErrors[fmt.Sprintf("schedules[%d].startTime", i)] = "time must be HH:MM or HH:MM:SS"
			} else {
				schedule.Start = &t
			}
		}
		if s.EndTime != nil && *s.EndTime != "" {
			t, err := rules.ParseTimeOfDay(*s.EndTime)
			if err != nil {
				fieldErrors[fmt.Sprintf("schedules[%d].endTime", i)] = "time must be HH:MM or HH:MM:SS"
			} else {
				schedule.End = &t
			}
		}
		schedules = append(schedules, schedule)
	}
	if len(fieldErrors) > 0 {
		return application.RuleInput{}, &application.ValidationError{FieldErrors: fieldErrors}
	}
	return application.RuleInput{
		Name:        req.Name,
		Description: req.Description,
		Type:        rules.Type(req.RuleType),
		Schedules:   schedules,
	}, nil
}

type ruleDTO struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Description       string        `json:"description"`
	RuleType          string        `json:"ruleType"`
	IsDefault         bool          `json:"isDefault"`
	Schedules         []scheduleDTO `json:"schedules"`
	AssignedEmployees int           `json:"assignedEmployees"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

func toRuleDTO(rule rules.Rule, assigned int) ruleDTO {
	schedules := make([]scheduleDTO, 0, len(rule.Schedules))
	for _, s := range rule.Schedules {
		active := s.Active
		dto := scheduleDTO{DayOfWeek: s.DayOfWeek, IsActive: &active}
		if s.Start != nil {
			v := s.Start.String()
			dto.StartTime = &v
		}
		if s.End != nil {
			v := s.End.String()
			dto.EndTime = &v
		}
		schedules = append(schedules, dto)
	}
	return ruleDTO{
		ID:                rule.ID,
		Name:              rule.Name,
		Description:       rule.Description,
		RuleType:          string(rule.Type),
		IsDefault:         rule.IsDefault,
		Schedules:         schedules,
		AssignedEmployees: assigned,
		CreatedAt:         rule.CreatedAt,
		UpdatedAt:         rule.UpdatedAt,
	}
}
