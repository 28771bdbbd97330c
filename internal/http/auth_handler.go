package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/example/worktrack/internal/application"
)

type authService interface {
	Authenticate(ctx context.Context, userID, password string) (application.User, error)
	CreateEmployee(ctx context.Context, params application.CreateEmployeeParams) (application.User, error)
}

type AuthHandler struct {
	service   authService
	responder responder
	logger    *slog.Logger
}

func NewAuthHandler(service authService, logger *slog.Logger) *AuthHandler {
	base := defaultLogger(logger)
	return &AuthHandler{service: service, responder: newResponder(base), logger: base}
}

// Login checks an employee's credentials.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.UserID, req.Password)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "AuthHandler", "Login", "user_id", user.UserID).InfoContext(r.Context(), "employee signed in")
	h.responder.writeJSON(r.Context(), w, http.StatusOK, authResponse{Employee: toEmployeeDTO(user)})
}

// Signup registers an employee under the default rule.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	user, err := h.service.CreateEmployee(r.Context(), application.CreateEmployeeParams{
		UserID:   req.UserID,
		Password: req.Password,
		Input: application.EmployeeInput{
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			JobRole:     req.JobRole,
			PhoneNumber: req.PhoneNumber,
		},
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, authResponse{Employee: toEmployeeDTO(user)})
}

type loginRequest struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
}

type signupRequest struct {
	UserID      string  `json:"userId"`
	Password    string  `json:"password"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	JobRole     string  `json:"jobRole"`
	PhoneNumber *string `json:"phoneNumber"`
}

type authResponse struct {
	Employee employeeDTO `json:"employee"`
}
