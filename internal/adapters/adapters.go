// Package adapters translates between persistence records and application
// models, and maps storage errors onto application sentinels.
package adapters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/worktrack/internal/application"
	"github.com/example/worktrack/internal/persistence"
	"github.com/example/worktrack/internal/rules"
)

// mapError converts persistence errors into the application's repository
// contract errors.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return application.ErrNotFound
	case errors.Is(err, persistence.ErrConflict):
		return application.ErrConflict
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%w: %v", application.ErrAlreadyExists, err)
	default:
		return err
	}
}

// UserRepository adapts a persistence.UserRepository to application.UserRepository.
type UserRepository struct {
	repo persistence.UserRepository
}

// NewUserRepository wraps repo.
func NewUserRepository(repo persistence.UserRepository) *UserRepository {
	return &UserRepository{repo: repo}
}

func (a *UserRepository) CreateUser(ctx context.Context, user application.User) (application.User, error) {
	if err := a.repo.CreateUser(ctx, toPersistenceUser(user)); err != nil {
		return application.User{}, mapError(err)
	}
	return a.GetUser(ctx, user.UserID)
}

func (a *UserRepository) GetUser(ctx context.Context, userID string) (application.User, error) {
	stored, err := a.repo.GetUser(ctx, userID)
	if err != nil {
		return application.User{}, mapError(err)
	}
	return toApplicationUser(stored), nil
}

func (a *UserRepository) UpdateUser(ctx context.Context, user application.User) (application.User, error) {
	if err := a.repo.UpdateUser(ctx, toPersistenceUser(user)); err != nil {
		return application.User{}, mapError(err)
	}
	return a.GetUser(ctx, user.UserID)
}

func (a *UserRepository) DeleteUser(ctx context.Context, userID string) error {
	return mapError(a.repo.DeleteUser(ctx, userID))
}

func (a *UserRepository) ListUsers(ctx context.Context) ([]application.User, error) {
	stored, err := a.repo.ListUsers(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	users := make([]application.User, 0, len(stored))
	for _, model := range stored {
		users = append(users, toApplicationUser(model))
	}
	return users, nil
}

// RuleRepository adapts persistence rule storage to application.RuleRepository.
// Assignment counts come from the user store.
type RuleRepository struct {
	repo  persistence.RuleRepository
	users persistence.UserRepository
}

// NewRuleRepository wraps repo and users.
func NewRuleRepository(repo persistence.RuleRepository, users persistence.UserRepository) *RuleRepository {
	return &RuleRepository{repo: repo, users: users}
}

func (a *RuleRepository) CreateRule(ctx context.Context, rule rules.Rule) (rules.Rule, error) {
	if err := a.repo.CreateRule(ctx, toPersistenceRule(rule)); err != nil {
		return rules.Rule{}, mapError(err)
	}
	return a.GetRule(ctx, rule.ID)
}

func (a *RuleRepository) GetRule(ctx context.Context, id string) (rules.Rule, error) {
	stored, err := a.repo.GetRule(ctx, id)
	if err != nil {
		return rules.Rule{}, mapError(err)
	}
	return toApplicationRule(stored)
}

func (a *RuleRepository) UpdateRule(ctx context.Context, rule rules.Rule) (rules.Rule, error) {
	if err := a.repo.UpdateRule(ctx, toPersistenceRule(rule)); err != nil {
		return rules.Rule{}, mapError(err)
	}
	return a.GetRule(ctx, rule.ID)
}

func (a *RuleRepository) DeleteRule(ctx context.Context, id string) error {
	err := a.repo.DeleteRule(ctx, id)
	if errors.Is(err, persistence.ErrConstraintViolation) {
		return application.ErrRuleInUse
	}
	return mapError(err)
}

func (a *RuleRepository) ListRules(ctx context.Context) ([]rules.Rule, error) {
	stored, err := a.repo.ListRules(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]rules.Rule, 0, len(stored))
	for _, model := range stored {
		rule, err := toApplicationRule(model)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (a *RuleRepository) GetDefaultRule(ctx context.Context) (rules.Rule, error) {
	stored, err := a.repo.GetDefaultRule(ctx)
	if err != nil {
		return rules.Rule{}, mapError(err)
	}
	return toApplicationRule(stored)
}

func (a *RuleRepository) RuleNameExists(ctx context.Context, name string) (bool, error) {
	exists, err := a.repo.RuleNameExists(ctx, name)
	return exists, mapError(err)
}

func (a *RuleRepository) CountUsersAssigned(ctx context.Context, ruleID string) (int, error) {
	count, err := a.users.CountUsersWithRule(ctx, ruleID)
	return count, mapError(err)
}

// SessionRepository adapts persistence session storage to application.SessionRepository.
type SessionRepository struct {
	repo persistence.WorkSessionRepository
}

// NewSessionRepository wraps repo.
func NewSessionRepository(repo persistence.WorkSessionRepository) *SessionRepository {
	return &SessionRepository{repo: repo}
}

func (a *SessionRepository) CreateSession(ctx context.Context, session application.WorkSession) (application.WorkSession, error) {
	if err := a.repo.CreateSession(ctx, toPersistenceSession(session)); err != nil {
		if errors.Is(err, persistence.ErrDuplicate) {
			// Another process holds an ACTIVE session for the user.
			return application.WorkSession{}, fmt.Errorf("%w: %v", application.ErrConflict, err)
		}
		return application.WorkSession{}, mapError(err)
	}
	return a.GetSession(ctx, session.ID)
}

func (a *SessionRepository) GetSession(ctx context.Context, id string) (application.WorkSession, error) {
	stored, err := a.repo.GetSession(ctx, id)
	if err != nil {
		return application.WorkSession{}, mapError(err)
	}
	return toApplicationSession(stored), nil
}

func (a *SessionRepository) UpdateActiveSession(ctx context.Context, session application.WorkSession) (application.WorkSession, error) {
	if err := a.repo.UpdateActiveSession(ctx, toPersistenceSession(session)); err != nil {
		return application.WorkSession{}, mapError(err)
	}
	return a.GetSession(ctx, session.ID)
}

func (a *SessionRepository) ListSessions(ctx context.Context, filter application.SessionFilter) ([]application.WorkSession, error) {
	stored, err := a.repo.ListSessions(ctx, persistence.SessionFilter{
		UserID: filter.UserID,
		Status: string(filter.Status),
	})
	if err != nil {
		return nil, mapError(err)
	}
	sessions := make([]application.WorkSession, 0, len(stored))
	for _, model := range stored {
		sessions = append(sessions, toApplicationSession(model))
	}
	return sessions, nil
}

// ActivityLogRepository adapts persistence activity storage to application.ActivityLogRepository.
type ActivityLogRepository struct {
	repo persistence.ActivityLogRepository
}

// NewActivityLogRepository wraps repo.
func NewActivityLogRepository(repo persistence.ActivityLogRepository) *ActivityLogRepository {
	return &ActivityLogRepository{repo: repo}
}

func (a *ActivityLogRepository) CreateActivityLog(ctx context.Context, log application.ActivityLog) (application.ActivityLog, error) {
	model := persistence.ActivityLog{
		ID:        log.ID,
		SessionID: log.SessionID,
		LoggedAt:  log.LoggedAt,
		Status:    string(log.Status),
		Metadata:  log.Metadata,
	}
	if err := a.repo.CreateActivityLog(ctx, model); err != nil {
		if errors.Is(err, persistence.ErrConstraintViolation) {
			return application.ActivityLog{}, application.ErrNotFound
		}
		return application.ActivityLog{}, mapError(err)
	}
	return toApplicationActivity(model), nil
}

func (a *ActivityLogRepository) ListActivityLogs(ctx context.Context, sessionID string) ([]application.ActivityLog, error) {
	stored, err := a.repo.ListActivityLogs(ctx, sessionID)
	if err != nil {
		return nil, mapError(err)
	}
	return toApplicationActivities(stored), nil
}

func (a *ActivityLogRepository) ListActivityLogsSince(ctx context.Context, sessionID string, since time.Time) ([]application.ActivityLog, error) {
	stored, err := a.repo.ListActivityLogsSince(ctx, sessionID, since)
	if err != nil {
		return nil, mapError(err)
	}
	return toApplicationActivities(stored), nil
}
