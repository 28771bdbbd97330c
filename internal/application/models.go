package application

import (
	"strings"
	"time"

	"github.com/example/worktrack/internal/rules"
)

// SessionStatus is the lifecycle state of a work session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "ACTIVE"
	SessionStopped SessionStatus = "STOPPED"
)

// ActivityStatus classifies a single activity signal reported by a client.
type ActivityStatus string

const (
	ActivityActive ActivityStatus = "ACTIVE"
	ActivityIdle   ActivityStatus = "IDLE"
)

// UserStatus marks whether an employee account is usable.
type UserStatus string

const (
	UserActive   UserStatus = "ACTIVE"
	UserInactive UserStatus = "INACTIVE"
)

// User is an employee known to the directory. UserID is the natural key.
type User struct {
	UserID       string
	FirstName    string
	LastName     string
	JobRole      string
	PhoneNumber  *string
	PasswordHash string
	RuleID       *string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// WorkSession is one tracked span of work for an employee.
type WorkSession struct {
	ID                       string
	UserID                   string
	TaskName                 string
	EstimatedDurationMinutes *int64
	StartTime                time.Time
	EndTime                  *time.Time
	Status                   SessionStatus
	IdleWarningSent          bool
	LastIdleCheckTime        *time.Time
}

// IsActive reports whether the session is still running.
func (s WorkSession) IsActive() bool {
	return s.Status == SessionActive
}

// Duration returns the elapsed time of the session at now.
func (s WorkSession) Duration(now time.Time) time.Duration {
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	if end.Before(s.StartTime) {
		return 0
	}
	return end.Sub(s.StartTime)
}

// ActivityLog is an append-only activity signal for a session.
type ActivityLog struct {
	ID        string
	SessionID string
	LoggedAt  time.Time
	Status    ActivityStatus
	Metadata  string
}

// EventType names a broadcast event.
type EventType string

const (
	EventSessionCreated  EventType = "SESSION_CREATED"
	EventSessionUpdated  EventType = "SESSION_UPDATED"
	EventSessionStopped  EventType = "SESSION_STOPPED"
	EventActivityLogged  EventType = "ACTIVITY_LOGGED"
	EventEmployeeCreated EventType = "EMPLOYEE_CREATED"
	EventEmployeeUpdated EventType = "EMPLOYEE_UPDATED"
	EventEmployeeDeleted EventType = "EMPLOYEE_DELETED"
	EventRuleChanged     EventType = "RULE_CHANGED"
)

// Topics events are published on.
const (
	TopicSessions       = "sessions"
	TopicEmployees      = "employees"
	TopicRules          = "rules"
	activityTopicPrefix = "activity."
)

// ActivityTopic returns the topic activity events for a session are published on.
func ActivityTopic(sessionID string) string {
	return activityTopicPrefix + sessionID
}

// Event is a state change broadcast to subscribers. Exactly one of the
// payload pointers is set.
type Event struct {
	Type       EventType
	OccurredAt time.Time
	Session    *WorkSession
	Activity   *ActivityLog
	Employee   *User
	Rule       *rules.Rule
}

// StartSessionParams carries the task metadata for a new session.
type StartSessionParams struct {
	UserID                   string
	TaskName                 string
	EstimatedDurationMinutes *int64
}

// SessionFilter narrows session listings. Zero values match everything.
type SessionFilter struct {
	UserID string
	Status SessionStatus
}

// RuleInput captures caller supplied rule fields.
type RuleInput struct {
	Name        string
	Description string
	Type        rules.Type
	Schedules   []rules.Schedule
}

// UpdateRuleParams wraps the data required to update an existing rule.
type UpdateRuleParams struct {
	RuleID string
	Input  RuleInput
}

// RuleUsage pairs a rule with the number of employees assigned to it.
type RuleUsage struct {
	Rule              rules.Rule
	AssignedEmployees int
}

// TrackingDecision is the outcome of a rule check for a user.
type TrackingDecision struct {
	Allowed    bool
	NextWindow string
}

// LogActivityParams carries a client activity signal.
type LogActivityParams struct {
	SessionID string
	Status    ActivityStatus
	Metadata  string
}

// EmployeeInput captures caller supplied employee fields.
type EmployeeInput struct {
	FirstName   string
	LastName    string
	JobRole     string
	PhoneNumber *string
	RuleID      *string
	Status      UserStatus
}

// CreateEmployeeParams wraps the data required to register an employee.
type CreateEmployeeParams struct {
	UserID   string
	Password string
	Input    EmployeeInput
}

// UpdateEmployeeParams wraps the data required to update an employee.
// Password is only changed when non-empty.
type UpdateEmployeeParams struct {
	UserID   string
	Password string
	Input    EmployeeInput
}

// EmployeeStats summarises an employee's sessions within a period.
type EmployeeStats struct {
	UserID        string
	From          time.Time
	To            time.Time
	WorkingDays   int
	TotalHours    float64
	ActiveSession *WorkSession
	Sessions      []WorkSession
}
