package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/example/worktrack/internal/testfixtures"
)

type apiHarness struct {
	handler  http.Handler
	clock    *testfixtures.Clock
	services *testfixtures.Services
	recorder *fakeRecorder
}

func newAPIHarness(t *testing.T, extra ...func(*RouterConfig)) *apiHarness {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testfixtures.NewClock(time.Time{})
	factory := testfixtures.NewServiceFactory(testfixtures.WithClock(clock), testfixtures.WithLogger(logger))
	services := factory.NewServices(t, testfixtures.NewMemoryStore(t))
	recorder := &fakeRecorder{}

	cfg := RouterConfig{
		Sessions:   NewSessionHandler(services.Sessions, services.Users, recorder, logger),
		Activity:   NewActivityHandler(services.Activity, logger),
		Rules:      NewRuleHandler(services.Rules, logger),
		Employees:  NewEmployeeHandler(services.Users, services.Sessions, services.Rules, time.UTC, clock.NowFunc(), logger),
		Auth:       NewAuthHandler(services.Users, logger),
		Events:     NewEventsHandler(services.Broker, time.Hour, logger),
		Health:     services.Store,
		Middleware: []func(http.Handler) http.Handler{RequestLogger(logger), Recoverer(logger), Metrics(recorder)},
	}
	for _, fn := range extra {
		fn(&cfg)
	}

	return &apiHarness{handler: NewRouter(cfg), clock: clock, services: services, recorder: recorder}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type fakeRecorder struct {
	mu       sync.Mutex
	routes   []string
	outcomes []string
}

func (f *fakeRecorder) RecordHTTPRequest(method, route string, statusCode int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, method+" "+route)
}

func (f *fakeRecorder) RecordSessionStart(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func TestSessionEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("start replaces the running session", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)
		h.services.CreateEmployee(t, "emp-1", "Ada", "Lovelace")

		rec := h.do(t, http.MethodPost, "/api/sessions/start", map[string]any{"userId": "emp-1", "taskName": "Reports", "estimatedDurationMinutes": 45})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		first := decodeBody[sessionDTO](t, rec)
		assert.Equal(t, "ACTIVE", first.Status)
		assert.Equal(t, "Ada", first.FirstName)
		assert.Equal(t, "Reports", first.TaskName)
		require.NotNil(t, first.EstimatedDurationMinutes)
		assert.Equal(t, int64(45), *first.EstimatedDurationMinutes)

		h.clock.Advance(time.Minute)
		rec = h.do(t, http.MethodPost, "/api/sessions/start", map[string]any{"userId": "emp-1"})
		require.Equal(t, http.StatusCreated, rec.Code)
		second := decodeBody[sessionDTO](t, rec)
		assert.NotEqual(t, first.ID, second.ID)

		rec = h.do(t, http.MethodGet, "/api/sessions/"+first.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "STOPPED", decodeBody[sessionDTO](t, rec).Status)

		rec = h.do(t, http.MethodGet, "/api/sessions?userId=emp-1&status=active", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		listed := decodeBody[[]sessionDTO](t, rec)
		require.Len(t, listed, 1)
		assert.Equal(t, second.ID, listed[0].ID)

		rec = h.do(t, http.MethodGet, "/api/employees/emp-1/session", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, second.ID, decodeBody[sessionDTO](t, rec).ID)

		assert.Equal(t, []string{"started", "started"}, h.recorder.outcomes)
	})

	t.Run("stopping twice conflicts", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)
		h.services.CreateEmployee(t, "emp-1", "Ada", "Lovelace")

		started := decodeBody[sessionDTO](t, h.do(t, http.MethodPost, "/api/sessions/start", map[string]any{"userId": "emp-1"}))
		h.clock.Advance(30 * time.Minute)

		rec := h.do(t, http.MethodPost, "/api/sessions/"+started.ID+"/stop", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		stopped := decodeBody[sessionDTO](t, rec)
		require.NotNil(t, stopped.EndTime)
		assert.True(t, stopped.EndTime.Equal(h.clock.Now()))

		rec = h.do(t, http.MethodPost, "/api/sessions/"+started.ID+"/stop", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "SESSION_ALREADY_STOPPED", decodeBody[errorResponse](t, rec).ErrorCode)
	})

	t.Run("unknown resources answer 404", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/sessions/missing", nil).Code)
		assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/api/sessions/missing/stop", nil).Code)

		rec := h.do(t, http.MethodPost, "/api/sessions/start", map[string]any{"userId": "ghost"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "USER_NOT_FOUND", decodeBody[errorResponse](t, rec).ErrorCode)
		assert.Equal(t, []string{"rejected"}, h.recorder.outcomes)
	})

	t.Run("malformed input answers 400", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)

		assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/sessions/start", "{").Code)
		assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/sessions?status=PAUSED", nil).Code)
	})

	t.Run("a rule outside its window denies with the next window", func(t *testing.T) {
		t.Parallel()
		h := newAPIHarness(t)
		h.services.CreateEmployee(t, "emp-1", "Ada", "Lovelace")

		rec := h.do(t, http.MethodPost, "/api/admin/login-rules", map[string]any{
			"name":     "Tuesdays",
			"ruleType": "CUSTOM",
			"schedules": []map[string]any{
				{"dayOfWeek": "TUESDAY", "startTime": "09:00", "endTime": "17:00"},
			},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		rule := decodeBody[ruleDTO](t, rec)

		rec = h.do(t, http.MethodPut, "/api/employees/emp-1", map[string]any{"firstName": "Ada", "lastName": "Lovelace", "loginRuleId": rule.ID})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		rec = h.do(t, http.MethodPost, "/api/sessions/start", map[string]any{"userId": "emp-1"})
		require.Equal(t, http.StatusForbidden, rec.Code)
		body := decodeBody[errorResponse](t, rec)
		assert.Equal(t, "TRACKING_NOT_ALLOWED", body.ErrorCode)
		assert.NotEmpty(t, body.NextAllowedWindow)
		assert.Equal(t, []string{"denied"}, h.recorder.outcomes)

		rec = h.do(t, http.MethodGet, "/api/employees/emp-1/login-rule", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		info := decodeBody[loginRuleResponse](t, rec)
		assert.Equal(t, rule.ID, info.Rule.ID)
		assert.False(t, info.TrackingAllowed)
		assert.Equal(t, body.NextAllowedWindow, info.NextAllowedWindow)
	})
}

func TestActivityEndpoints(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t)
	h.services.CreateEmployee(t, "emp-1", "Ada", "Lovelace")
	session := decodeBody[sessionDTO](t, h.do(t, http.MethodPost, "/api/sessions/start", map[string]any{"userId": "emp-1"}))

	rec := h.do(t, http.MethodPost, "/api/activity", map[string]any{"sessionId": session.ID, "activityStatus": "idle", "metadata": "<b>away</b>"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	logged := decodeBody[activityDTO](t, rec)
	assert.Equal(t, "IDLE", logged.ActivityStatus)
	assert.Equal(t, "away", logged.Metadata)

	rec = h.do(t, http.MethodPost, "/api/activity", map[string]any{"sessionId": session.ID, "activityStatus": "SLEEPING"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[errorResponse](t, rec).Errors, "status")

	rec = h.do(t, http.MethodGet, "/api/activity/session/"+session.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]activityDTO](t, rec), 1)

	h.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/stop", nil)
	rec = h.do(t, http.MethodPost, "/api/activity", map[string]any{"sessionId": session.ID, "activityStatus": "ACTIVE"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRuleEndpoints(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodGet, "/api/admin/login-rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[[]ruleDTO](t, rec)
	require.Len(t, listed, 1)
	defaultRule := listed[0]
	assert.True(t, defaultRule.IsDefault)
	assert.Equal(t, "ALL_DAYS", defaultRule.RuleType)

	payload := map[string]any{
		"name":        "Office Hours",
		"description": "Weekday office",
		"ruleType":    "ALL_DAYS_WITH_TIME",
		"schedules":   []map[string]any{{"dayOfWeek": "ALL", "startTime": "08:00", "endTime": "18:30"}},
	}
	rec = h.do(t, http.MethodPost, "/api/admin/login-rules", payload)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	office := decodeBody[ruleDTO](t, rec)
	require.Len(t, office.Schedules, 1)
	assert.Equal(t, "18:30", *office.Schedules[0].EndTime)

	rec = h.do(t, http.MethodPost, "/api/admin/login-rules", payload)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE_NAME", decodeBody[errorResponse](t, rec).ErrorCode)

	rec = h.do(t, http.MethodPost, "/api/admin/login-rules", map[string]any{
		"name":      "Broken",
		"ruleType":  "CUSTOM",
		"schedules": []map[string]any{{"dayOfWeek": "MONDAY", "startTime": "25:00", "endTime": "26:00"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/admin/login-rules", map[string]any{"name": "No windows", "ruleType": "CUSTOM"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_RULE", decodeBody[errorResponse](t, rec).ErrorCode)

	payload["description"] = "Extended"
	rec = h.do(t, http.MethodPut, "/api/admin/login-rules/"+office.ID, payload)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Extended", decodeBody[ruleDTO](t, rec).Description)

	h.services.CreateEmployee(t, "emp-1", "Ada", "Lovelace")
	h.do(t, http.MethodPut, "/api/employees/emp-1", map[string]any{"firstName": "Ada", "lastName": "Lovelace", "loginRuleId": office.ID})

	rec = h.do(t, http.MethodGet, "/api/admin/login-rules/"+office.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[ruleDTO](t, rec).AssignedEmployees)

	rec = h.do(t, http.MethodDelete, "/api/admin/login-rules/"+office.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "RULE_IN_USE", decodeBody[errorResponse](t, rec).ErrorCode)

	rec = h.do(t, http.MethodDelete, "/api/admin/login-rules/"+defaultRule.ID, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	require.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/employees/emp-1", nil).Code)
	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/admin/login-rules/"+office.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/admin/login-rules/"+office.ID, nil).Code)
}

func TestEmployeeEndpoints(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/api/employees", map[string]any{
		"userId": "emp-1", "password": "correct-horse", "firstName": "Ada", "lastName": "Lovelace", "jobRole": "Analyst",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[employeeDTO](t, rec)
	assert.Equal(t, "ACTIVE", created.Status)
	require.NotNil(t, created.RuleID, "the default rule is assigned")

	rec = h.do(t, http.MethodPost, "/api/employees", map[string]any{
		"userId": "emp-1", "password": "correct-horse", "firstName": "Ada", "lastName": "Lovelace",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/employees", map[string]any{"userId": "emp 2", "password": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decodeBody[errorResponse](t, rec).Errors
	assert.Contains(t, fields, "user_id")
	assert.Contains(t, fields, "first_name")
	assert.Contains(t, fields, "password")

	rec = h.do(t, http.MethodGet, "/api/employees", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeBody[employeeListResponse](t, rec).Total)

	session := decodeBody[sessionDTO](t, h.do(t, http.MethodPost, "/api/sessions/start", map[string]any{"userId": "emp-1"}))
	h.clock.Advance(90 * time.Minute)
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/sessions/"+session.ID+"/stop", nil).Code)

	rec = h.do(t, http.MethodGet, "/api/employees/emp-1/stats?from=2024-03-11&to=2024-03-11", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stats := decodeBody[statsResponse](t, rec)
	assert.Equal(t, 1, stats.WorkingDays)
	assert.InDelta(t, 1.5, stats.TotalHours, 0.001)
	assert.Len(t, stats.Sessions, 1)
	assert.Nil(t, stats.ActiveSession)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/employees/emp-1/stats?from=11-03-2024", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/employees/ghost/stats", nil).Code)

	rec = h.do(t, http.MethodGet, "/api/employees/emp-1/login-rule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	info := decodeBody[loginRuleResponse](t, rec)
	assert.True(t, info.Rule.IsDefault)
	assert.True(t, info.TrackingAllowed)

	require.Equal(t, http.StatusNoContent, h.do(t, http.MethodDelete, "/api/employees/emp-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/employees/emp-1", nil).Code)
}

func TestAuthEndpoints(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t)

	rec := h.do(t, http.MethodPost, "/api/auth/signup", map[string]any{
		"userId": "emp-9", "password": "correct-horse", "firstName": "Grace", "lastName": "Hopper",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodPost, "/api/auth/login", map[string]any{"userId": "emp-9", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Grace", decodeBody[authResponse](t, rec).Employee.FirstName)
	assert.NotContains(t, rec.Body.String(), "argon2id")

	rec = h.do(t, http.MethodPost, "/api/auth/login", map[string]any{"userId": "emp-9", "password": "wrong-horse"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = h.do(t, http.MethodPost, "/api/auth/login", map[string]any{"userId": "nobody", "password": "correct-horse"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t, func(cfg *RouterConfig) {
		cfg.Metrics = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "# metrics")
		})
	})

	rec := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody[healthResponse](t, rec).Status)
	assert.Equal(t, "# metrics", h.do(t, http.MethodGet, "/metrics", nil).Body.String())

	h.do(t, http.MethodGet, "/api/sessions/abc", nil)
	assert.Contains(t, h.recorder.routes, "GET /api/sessions/{sessionID}")
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("database gone") }

func TestHealthReportsStorageFailure(t *testing.T) {
	t.Parallel()
	handler := NewRouter(RouterConfig{Health: failingPinger{}})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()
	limiter := NewRateLimiter(RateLimitConfig{Rate: rate.Every(time.Hour), Burst: 2}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(limiter.Stop)

	h := newAPIHarness(t, func(cfg *RouterConfig) {
		cfg.APIMiddleware = append(cfg.APIMiddleware, limiter.Middleware())
	})

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/employees", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/employees", nil).Code)
	rec := h.do(t, http.MethodGet, "/api/employees", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/healthz", nil).Code, "health checks are not limited")

	req := httptest.NewRequest(http.MethodGet, "/api/employees", nil)
	req.RemoteAddr = "198.51.100.7:4000"
	other := httptest.NewRecorder()
	h.handler.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code, "clients are limited independently")
	assert.Equal(t, 2, limiter.LimiterCount())

	limiter.cleanup(time.Now().Add(time.Hour))
	assert.Zero(t, limiter.LimiterCount())
}

func TestRecovererReturns500(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Recoverer(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEventStream(t *testing.T) {
	t.Parallel()
	h := newAPIHarness(t)
	h.services.CreateEmployee(t, "emp-1", "Ada", "Lovelace")

	srv := httptest.NewServer(h.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events?topic=sessions", nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": connected\n", line)

	startResp, err := srv.Client().Post(srv.URL+"/api/sessions/start", "application/json", strings.NewReader(`{"userId":"emp-1"}`))
	require.NoError(t, err)
	startResp.Body.Close()
	require.Equal(t, http.StatusCreated, startResp.StatusCode)

	var eventLine, dataLine string
	for eventLine == "" || dataLine == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventLine = strings.TrimSpace(strings.TrimPrefix(line, "event: "))
		case strings.HasPrefix(line, "data: "):
			dataLine = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	assert.Equal(t, "SESSION_CREATED", eventLine)
	var payload eventDTO
	require.NoError(t, json.Unmarshal([]byte(dataLine), &payload))
	assert.Equal(t, "sessions", payload.Topic)
	require.NotNil(t, payload.Session)
	assert.Equal(t, "emp-1", payload.Session.UserID)
}
