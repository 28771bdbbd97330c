package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Pinger reports storage health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Sessions  *SessionHandler
	Activity  *ActivityHandler
	Rules     *RuleHandler
	Employees *EmployeeHandler
	Auth      *AuthHandler
	Events    *EventsHandler
	Health    Pinger
	Metrics   http.Handler
	// Middleware wraps every route, outermost first.
	Middleware []func(http.Handler) http.Handler
	// APIMiddleware wraps only the /api routes, e.g. rate limiting.
	APIMiddleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	for _, mw := range cfg.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.Get("/healthz", healthHandler(cfg.Health))
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		for _, mw := range cfg.APIMiddleware {
			if mw != nil {
				r.Use(mw)
			}
		}

		if h := cfg.Sessions; h != nil {
			r.Route("/sessions", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/start", h.Start)
				r.Get("/{sessionID}", h.Get)
				r.Post("/{sessionID}/stop", h.Stop)
			})
		}

		if h := cfg.Activity; h != nil {
			r.Route("/activity", func(r chi.Router) {
				r.Post("/", h.Log)
				r.Get("/session/{sessionID}", h.List)
			})
		}

		if h := cfg.Rules; h != nil {
			r.Route("/admin/login-rules", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Get("/{ruleID}", h.Get)
				r.Put("/{ruleID}", h.Update)
				r.Delete("/{ruleID}", h.Delete)
			})
		}

		if h := cfg.Employees; h != nil {
			r.Route("/employees", func(r chi.Router) {
				r.Get("/", h.List)
				r.Post("/", h.Create)
				r.Route("/{userID}", func(r chi.Router) {
					r.Get("/", h.Get)
					r.Put("/", h.Update)
					r.Delete("/", h.Delete)
					r.Get("/stats", h.Stats)
					r.Get("/login-rule", h.LoginRule)
					if cfg.Sessions != nil {
						r.Get("/session", cfg.Sessions.Active)
					}
				})
			})
		}

		if h := cfg.Auth; h != nil {
			r.Post("/auth/login", h.Login)
			r.Post("/auth/signup", h.Signup)
		}

		if h := cfg.Events; h != nil {
			r.Get("/events", h.Stream)
		}
	})

	return r
}

func healthHandler(pinger Pinger) http.HandlerFunc {
	responder := newResponder(nil)
	return func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			if err := pinger.Ping(r.Context()); err != nil {
				responder.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		responder.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}

type healthResponse struct {
	Status string `json:"status"`
}
