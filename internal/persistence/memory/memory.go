// Package memory provides a map-backed implementation of the persistence
// repositories. It enforces the same keys and references as the SQL schema.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/worktrack/internal/persistence"
)

// Storage keeps every record in process memory.
type Storage struct {
	mu       sync.RWMutex
	users    map[string]persistence.User
	rules    map[string]persistence.Rule
	sessions map[string]persistence.WorkSession
	logs     map[string][]persistence.ActivityLog
}

var _ persistence.Store = (*Storage)(nil)

// New returns an empty Storage.
func New() *Storage {
	return &Storage{
		users:    make(map[string]persistence.User),
		rules:    make(map[string]persistence.Rule),
		sessions: make(map[string]persistence.WorkSession),
		logs:     make(map[string][]persistence.ActivityLog),
	}
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}

// Migrate is a no-op.
func (s *Storage) Migrate(context.Context) error {
	return nil
}

// Ping always succeeds.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// --- UserRepository implementation ---

// CreateUser stores a new employee.
func (s *Storage) CreateUser(ctx context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.UserID]; ok {
		return persistence.ErrDuplicate
	}
	if err := s.checkRuleRefLocked(user.RuleID); err != nil {
		return err
	}

	s.users[user.UserID] = cloneUser(user)
	return nil
}

// UpdateUser replaces an existing employee.
func (s *Storage) UpdateUser(ctx context.Context, user persistence.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.UserID]; !ok {
		return persistence.ErrNotFound
	}
	if err := s.checkRuleRefLocked(user.RuleID); err != nil {
		return err
	}

	s.users[user.UserID] = cloneUser(user)
	return nil
}

// GetUser retrieves an employee by user ID.
func (s *Storage) GetUser(ctx context.Context, userID string) (persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return persistence.User{}, persistence.ErrNotFound
	}
	return cloneUser(user), nil
}

// ListUsers returns all employees ordered by user ID.
func (s *Storage) ListUsers(ctx context.Context) ([]persistence.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]persistence.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, cloneUser(user))
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].UserID < users[j].UserID
	})
	return users, nil
}

// DeleteUser removes an employee together with their sessions and activity.
func (s *Storage) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return persistence.ErrNotFound
	}
	delete(s.users, userID)

	for id, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, id)
			delete(s.logs, id)
		}
	}
	return nil
}

// CountUsersWithRule counts employees assigned to ruleID.
func (s *Storage) CountUsersWithRule(ctx context.Context, ruleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, user := range s.users {
		if user.RuleID != nil && *user.RuleID == ruleID {
			count++
		}
	}
	return count, nil
}

func (s *Storage) checkRuleRefLocked(ruleID *string) error {
	if ruleID == nil {
		return nil
	}
	if _, ok := s.rules[*ruleID]; !ok {
		return persistence.ErrConstraintViolation
	}
	return nil
}

// --- RuleRepository implementation ---

// CreateRule stores a rule and its schedules.
func (s *Storage) CreateRule(ctx context.Context, rule persistence.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; ok {
		return persistence.ErrDuplicate
	}
	if err := s.ensureUniqueRuleLocked(rule); err != nil {
		return err
	}

	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// UpdateRule replaces a rule and swaps its schedule set.
func (s *Storage) UpdateRule(ctx context.Context, rule persistence.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[rule.ID]; !ok {
		return persistence.ErrNotFound
	}
	if err := s.ensureUniqueRuleLocked(rule); err != nil {
		return err
	}

	s.rules[rule.ID] = cloneRule(rule)
	return nil
}

// GetRule retrieves a rule by ID.
func (s *Storage) GetRule(ctx context.Context, id string) (persistence.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return persistence.Rule{}, persistence.ErrNotFound
	}
	return cloneRule(rule), nil
}

// GetDefaultRule returns the rule flagged as default.
func (s *Storage) GetDefaultRule(ctx context.Context) (persistence.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.rules {
		if rule.IsDefault {
			return cloneRule(rule), nil
		}
	}
	return persistence.Rule{}, persistence.ErrNotFound
}

// RuleNameExists reports whether a rule already uses name.
func (s *Storage) RuleNameExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rule := range s.rules {
		if rule.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// ListRules returns all rules ordered by name.
func (s *Storage) ListRules(ctx context.Context) ([]persistence.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]persistence.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rules = append(rules, cloneRule(rule))
	}
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Name < rules[j].Name
	})
	return rules, nil
}

// DeleteRule removes a rule. Rules still assigned to employees are kept.
func (s *Storage) DeleteRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return persistence.ErrNotFound
	}
	for _, user := range s.users {
		if user.RuleID != nil && *user.RuleID == id {
			return persistence.ErrConstraintViolation
		}
	}

	delete(s.rules, id)
	return nil
}

func (s *Storage) ensureUniqueRuleLocked(rule persistence.Rule) error {
	for id, existing := range s.rules {
		if id == rule.ID {
			continue
		}
		if existing.Name == rule.Name {
			return persistence.ErrDuplicate
		}
		if rule.IsDefault && existing.IsDefault {
			return persistence.ErrDuplicate
		}
	}
	return nil
}

// --- WorkSessionRepository implementation ---

// CreateSession stores a new session. A second ACTIVE session for the same
// user is rejected.
func (s *Storage) CreateSession(ctx context.Context, session persistence.WorkSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.ID]; ok {
		return persistence.ErrDuplicate
	}
	if _, ok := s.users[session.UserID]; !ok {
		return persistence.ErrConstraintViolation
	}
	if session.Status == persistence.StatusActive {
		for _, existing := range s.sessions {
			if existing.UserID == session.UserID && existing.Status == persistence.StatusActive {
				return persistence.ErrDuplicate
			}
		}
	}

	s.sessions[session.ID] = cloneSession(session)
	return nil
}

// GetSession retrieves a session by ID.
func (s *Storage) GetSession(ctx context.Context, id string) (persistence.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return persistence.WorkSession{}, persistence.ErrNotFound
	}
	return cloneSession(session), nil
}

// UpdateActiveSession overwrites the mutable fields of a session that is
// still ACTIVE.
func (s *Storage) UpdateActiveSession(ctx context.Context, session persistence.WorkSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if current.Status != persistence.StatusActive {
		return persistence.ErrConflict
	}

	updated := cloneSession(session)
	updated.UserID = current.UserID
	updated.StartTime = current.StartTime
	s.sessions[session.ID] = updated
	return nil
}

// ListSessions returns matching sessions, newest first.
func (s *Storage) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.WorkSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]persistence.WorkSession, 0)
	for _, session := range s.sessions {
		if filter.UserID != "" && session.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(session.Status, filter.Status) {
			continue
		}
		sessions = append(sessions, cloneSession(session))
	}
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
	return sessions, nil
}

// --- ActivityLogRepository implementation ---

// CreateActivityLog appends a signal to its session.
func (s *Storage) CreateActivityLog(ctx context.Context, log persistence.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[log.SessionID]; !ok {
		return persistence.ErrConstraintViolation
	}
	for _, existing := range s.logs[log.SessionID] {
		if existing.ID == log.ID {
			return persistence.ErrDuplicate
		}
	}

	s.logs[log.SessionID] = append(s.logs[log.SessionID], log)
	return nil
}

// ListActivityLogs returns a session's signals, oldest first.
func (s *Storage) ListActivityLogs(ctx context.Context, sessionID string) ([]persistence.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]persistence.ActivityLog, len(s.logs[sessionID]))
	copy(logs, s.logs[sessionID])
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].LoggedAt.Before(logs[j].LoggedAt)
	})
	return logs, nil
}

// ListActivityLogsSince returns signals logged strictly after since, newest first.
func (s *Storage) ListActivityLogsSince(ctx context.Context, sessionID string, since time.Time) ([]persistence.ActivityLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := make([]persistence.ActivityLog, 0)
	for _, log := range s.logs[sessionID] {
		if log.LoggedAt.After(since) {
			logs = append(logs, log)
		}
	}
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].LoggedAt.After(logs[j].LoggedAt)
	})
	return logs, nil
}

func cloneUser(user persistence.User) persistence.User {
	user.PhoneNumber = cloneString(user.PhoneNumber)
	user.RuleID = cloneString(user.RuleID)
	return user
}

func cloneRule(rule persistence.Rule) persistence.Rule {
	schedules := make([]persistence.RuleSchedule, len(rule.Schedules))
	for i, schedule := range rule.Schedules {
		schedules[i] = persistence.RuleSchedule{
			DayOfWeek: schedule.DayOfWeek,
			StartTime: cloneString(schedule.StartTime),
			EndTime:   cloneString(schedule.EndTime),
			Active:    schedule.Active,
		}
	}
	rule.Schedules = schedules
	return rule
}

func cloneSession(session persistence.WorkSession) persistence.WorkSession {
	if session.EstimatedDurationMinutes != nil {
		copy := *session.EstimatedDurationMinutes
		session.EstimatedDurationMinutes = &copy
	}
	session.EndTime = cloneTime(session.EndTime)
	session.LastIdleCheckTime = cloneTime(session.LastIdleCheckTime)
	return session
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copy := *value
	return &copy
}
