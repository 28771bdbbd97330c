package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/worktrack/internal/rules"
)

type sessionRepoStub struct {
	mu        sync.Mutex
	sessions  map[string]WorkSession
	createErr error
	listErr   error
	// beforeUpdate runs inside UpdateActiveSession to simulate a concurrent writer.
	beforeUpdate func(id string)
}

func newSessionRepoStub(sessions ...WorkSession) *sessionRepoStub {
	stub := &sessionRepoStub{sessions: make(map[string]WorkSession)}
	for _, s := range sessions {
		stub.sessions[s.ID] = s
	}
	return stub
}

func (r *sessionRepoStub) CreateSession(ctx context.Context, session WorkSession) (WorkSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return WorkSession{}, r.createErr
	}
	r.sessions[session.ID] = session
	return session, nil
}

func (r *sessionRepoStub) GetSession(ctx context.Context, id string) (WorkSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return WorkSession{}, ErrNotFound
	}
	return session, nil
}

func (r *sessionRepoStub) UpdateActiveSession(ctx context.Context, session WorkSession) (WorkSession, error) {
	if r.beforeUpdate != nil {
		r.beforeUpdate(session.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.sessions[session.ID]
	if !ok {
		return WorkSession{}, ErrNotFound
	}
	if current.Status != SessionActive {
		return WorkSession{}, ErrConflict
	}
	r.sessions[session.ID] = session
	return session, nil
}

func (r *sessionRepoStub) ListSessions(ctx context.Context, filter SessionFilter) ([]WorkSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []WorkSession
	for _, s := range r.sessions {
		if filter.UserID != "" && s.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && s.Status != filter.Status {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *sessionRepoStub) forceStop(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.sessions[id]
	s.Status = SessionStopped
	s.EndTime = &at
	r.sessions[id] = s
}

func (r *sessionRepoStub) countActive(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sessions {
		if s.UserID == userID && s.Status == SessionActive {
			n++
		}
	}
	return n
}

type userRepoStub struct {
	mu        sync.Mutex
	users     map[string]User
	createErr error
}

func newUserRepoStub(users ...User) *userRepoStub {
	stub := &userRepoStub{users: make(map[string]User)}
	for _, u := range users {
		stub.users[u.UserID] = u
	}
	return stub
}

func (r *userRepoStub) CreateUser(ctx context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return User{}, r.createErr
	}
	if _, ok := r.users[user.UserID]; ok {
		return User{}, ErrAlreadyExists
	}
	r.users[user.UserID] = user
	return user, nil
}

func (r *userRepoStub) GetUser(ctx context.Context, userID string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *userRepoStub) UpdateUser(ctx context.Context, user User) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.UserID]; !ok {
		return User{}, ErrNotFound
	}
	r.users[user.UserID] = user
	return user, nil
}

func (r *userRepoStub) DeleteUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return ErrNotFound
	}
	delete(r.users, userID)
	return nil
}

func (r *userRepoStub) ListUsers(ctx context.Context) ([]User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, u)
	}
	return out, nil
}

type ruleRepoStub struct {
	rules    map[string]rules.Rule
	assigned map[string]int
	gets     int
	deleted  []string
}

func newRuleRepoStub(all ...rules.Rule) *ruleRepoStub {
	stub := &ruleRepoStub{rules: make(map[string]rules.Rule), assigned: make(map[string]int)}
	for _, r := range all {
		stub.rules[r.ID] = r
	}
	return stub
}

func (r *ruleRepoStub) CreateRule(ctx context.Context, rule rules.Rule) (rules.Rule, error) {
	r.rules[rule.ID] = rule.Clone()
	return rule, nil
}

func (r *ruleRepoStub) GetRule(ctx context.Context, id string) (rules.Rule, error) {
	r.gets++
	rule, ok := r.rules[id]
	if !ok {
		return rules.Rule{}, ErrNotFound
	}
	return rule.Clone(), nil
}

func (r *ruleRepoStub) UpdateRule(ctx context.Context, rule rules.Rule) (rules.Rule, error) {
	if _, ok := r.rules[rule.ID]; !ok {
		return rules.Rule{}, ErrNotFound
	}
	r.rules[rule.ID] = rule.Clone()
	return rule, nil
}

func (r *ruleRepoStub) DeleteRule(ctx context.Context, id string) error {
	if _, ok := r.rules[id]; !ok {
		return ErrNotFound
	}
	delete(r.rules, id)
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *ruleRepoStub) ListRules(ctx context.Context) ([]rules.Rule, error) {
	out := make([]rules.Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.Clone())
	}
	return out, nil
}

func (r *ruleRepoStub) GetDefaultRule(ctx context.Context) (rules.Rule, error) {
	for _, rule := range r.rules {
		if rule.IsDefault {
			return rule.Clone(), nil
		}
	}
	return rules.Rule{}, ErrNotFound
}

func (r *ruleRepoStub) RuleNameExists(ctx context.Context, name string) (bool, error) {
	for _, rule := range r.rules {
		if rule.Name == name {
			return true, nil
		}
	}
	return false, nil
}

func (r *ruleRepoStub) CountUsersAssigned(ctx context.Context, ruleID string) (int, error) {
	return r.assigned[ruleID], nil
}

type activityRepoStub struct {
	logs []ActivityLog
}

func (r *activityRepoStub) CreateActivityLog(ctx context.Context, log ActivityLog) (ActivityLog, error) {
	r.logs = append(r.logs, log)
	return log, nil
}

func (r *activityRepoStub) ListActivityLogs(ctx context.Context, sessionID string) ([]ActivityLog, error) {
	var out []ActivityLog
	for _, l := range r.logs {
		if l.SessionID == sessionID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *activityRepoStub) ListActivityLogsSince(ctx context.Context, sessionID string, since time.Time) ([]ActivityLog, error) {
	var out []ActivityLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		l := r.logs[i]
		if l.SessionID == sessionID && l.LoggedAt.After(since) {
			out = append(out, l)
		}
	}
	return out, nil
}

type publishedEvent struct {
	topic string
	event Event
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic string, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, event: event})
	return p.err
}

func (p *recordingPublisher) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.event.Type
	}
	return out
}

type trackingStub struct {
	decision TrackingDecision
	err      error
	calls    int
}

func (t *trackingStub) CheckTracking(ctx context.Context, user User, now time.Time) (TrackingDecision, error) {
	t.calls++
	return t.decision, t.err
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (plainHasher) Verify(encoded, password string) error {
	if encoded != "hashed:"+password {
		return ErrInvalidCredentials
	}
	return nil
}

func stringPtr(v string) *string { return &v }

func int64Ptr(v int64) *int64 { return &v }

func sequentialIDs(prefix string) func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}
