package persistence

import (
	"context"
	"time"
)

// UserRepository exposes CRUD operations for employees.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	UpdateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, userID string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, userID string) error
	CountUsersWithRule(ctx context.Context, ruleID string) (int, error)
}

// RuleRepository stores login rules. UpdateRule replaces the schedule set.
type RuleRepository interface {
	CreateRule(ctx context.Context, rule Rule) error
	UpdateRule(ctx context.Context, rule Rule) error
	GetRule(ctx context.Context, id string) (Rule, error)
	GetDefaultRule(ctx context.Context) (Rule, error)
	RuleNameExists(ctx context.Context, name string) (bool, error)
	ListRules(ctx context.Context) ([]Rule, error)
	DeleteRule(ctx context.Context, id string) error
}

// SessionFilter narrows session queries. Empty fields match everything.
type SessionFilter struct {
	UserID string
	Status string
}

// WorkSessionRepository stores work sessions.
//
// UpdateActiveSession writes only when the stored row is still ACTIVE. It
// returns ErrConflict when the row exists in another state.
type WorkSessionRepository interface {
	CreateSession(ctx context.Context, session WorkSession) error
	GetSession(ctx context.Context, id string) (WorkSession, error)
	UpdateActiveSession(ctx context.Context, session WorkSession) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]WorkSession, error)
}

// ActivityLogRepository stores append-only activity signals.
type ActivityLogRepository interface {
	CreateActivityLog(ctx context.Context, log ActivityLog) error
	// ListActivityLogs returns a session's logs oldest first.
	ListActivityLogs(ctx context.Context, sessionID string) ([]ActivityLog, error)
	// ListActivityLogsSince returns logs strictly after since, newest first.
	ListActivityLogsSince(ctx context.Context, sessionID string, since time.Time) ([]ActivityLog, error)
}

// Store bundles every repository behind one handle.
type Store interface {
	UserRepository
	RuleRepository
	WorkSessionRepository
	ActivityLogRepository
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
