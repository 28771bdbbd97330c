package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/worktrack/internal/persistence"
)

var (
	userCounter    uint64
	sessionCounter uint64
	logCounter     uint64
)

// UserOption configures a persistence user fixture.
type UserOption func(*persistence.User)

// NewUser returns an ACTIVE employee with deterministic fields.
func NewUser(opts ...UserOption) persistence.User {
	idx := atomic.AddUint64(&userCounter, 1)
	created := referenceTime.Add(-time.Duration(idx) * time.Hour)
	user := persistence.User{
		UserID:       fmt.Sprintf("emp-%03d", idx),
		FirstName:    "Test",
		LastName:     fmt.Sprintf("Employee %03d", idx),
		JobRole:      "Engineer",
		PasswordHash: "hash",
		Status:       persistence.StatusActive,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
	for _, opt := range opts {
		opt(&user)
	}
	return user
}

// WithUserID overrides the generated user ID.
func WithUserID(id string) UserOption {
	return func(u *persistence.User) { u.UserID = id }
}

// WithUserRule assigns the user to a rule.
func WithUserRule(ruleID string) UserOption {
	return func(u *persistence.User) { u.RuleID = &ruleID }
}

// WithUserName overrides first and last name.
func WithUserName(first, last string) UserOption {
	return func(u *persistence.User) {
		u.FirstName = first
		u.LastName = last
	}
}

// RuleOption configures a persistence rule fixture.
type RuleOption func(*persistence.Rule)

// NewRule returns an unrestricted non-default rule named name.
func NewRule(id, name string, opts ...RuleOption) persistence.Rule {
	rule := persistence.Rule{
		ID:        id,
		Name:      name,
		Type:      "ALL_DAYS",
		Schedules: []persistence.RuleSchedule{},
		CreatedAt: referenceTime,
		UpdatedAt: referenceTime,
	}
	for _, opt := range opts {
		opt(&rule)
	}
	return rule
}

// AsDefaultRule flags the rule as the default.
func AsDefaultRule() RuleOption {
	return func(r *persistence.Rule) { r.IsDefault = true }
}

// WithCustomWindow makes the rule CUSTOM and appends a window on day.
func WithCustomWindow(day, start, end string) RuleOption {
	return func(r *persistence.Rule) {
		r.Type = "CUSTOM"
		r.Schedules = append(r.Schedules, persistence.RuleSchedule{
			DayOfWeek: day,
			StartTime: &start,
			EndTime:   &end,
			Active:    true,
		})
	}
}

// SessionOption configures a persistence session fixture.
type SessionOption func(*persistence.WorkSession)

// NewSession returns an ACTIVE session for userID started at the reference time.
func NewSession(userID string, opts ...SessionOption) persistence.WorkSession {
	idx := atomic.AddUint64(&sessionCounter, 1)
	session := persistence.WorkSession{
		ID:        fmt.Sprintf("sess-%03d", idx),
		UserID:    userID,
		TaskName:  "Fixture task",
		StartTime: referenceTime,
		Status:    persistence.StatusActive,
	}
	for _, opt := range opts {
		opt(&session)
	}
	return session
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) SessionOption {
	return func(s *persistence.WorkSession) { s.ID = id }
}

// StartedAt overrides the session start time.
func StartedAt(t time.Time) SessionOption {
	return func(s *persistence.WorkSession) { s.StartTime = t }
}

// StoppedAt marks the session STOPPED at t.
func StoppedAt(t time.Time) SessionOption {
	return func(s *persistence.WorkSession) {
		s.Status = persistence.StatusStopped
		s.EndTime = &t
	}
}

// NewActivityLog returns a signal for sessionID at loggedAt.
func NewActivityLog(sessionID string, loggedAt time.Time, idle bool) persistence.ActivityLog {
	idx := atomic.AddUint64(&logCounter, 1)
	status := persistence.StatusActive
	if idle {
		status = persistence.StatusIdle
	}
	return persistence.ActivityLog{
		ID:        fmt.Sprintf("log-%04d", idx),
		SessionID: sessionID,
		LoggedAt:  loggedAt,
		Status:    status,
	}
}
