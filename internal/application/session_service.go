package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
)

// SessionRepository captures the persistence operations needed by the session service.
//
// UpdateActiveSession only writes when the stored session is still ACTIVE and
// returns ErrConflict otherwise.
type SessionRepository interface {
	CreateSession(ctx context.Context, session WorkSession) (WorkSession, error)
	GetSession(ctx context.Context, id string) (WorkSession, error)
	UpdateActiveSession(ctx context.Context, session WorkSession) (WorkSession, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]WorkSession, error)
}

// UserDirectory resolves employees by their user ID.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (User, error)
}

// TrackingChecker decides whether a user may start tracking at a given instant.
type TrackingChecker interface {
	CheckTracking(ctx context.Context, user User, now time.Time) (TrackingDecision, error)
}

// SessionService owns the work session state machine.
type SessionService struct {
	sessions    SessionRepository
	users       UserDirectory
	tracking    TrackingChecker
	publisher   EventPublisher
	locks       *userLocks
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewSessionService wires dependencies for the session service.
func NewSessionService(sessions SessionRepository, users UserDirectory, tracking TrackingChecker, idGenerator func() string, now func() time.Time) *SessionService {
	return NewSessionServiceWithLogger(sessions, users, tracking, nil, idGenerator, now, nil)
}

// NewSessionServiceWithLogger wires dependencies including an event publisher and logger.
func NewSessionServiceWithLogger(sessions SessionRepository, users UserDirectory, tracking TrackingChecker, publisher EventPublisher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SessionService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SessionService{
		sessions:    sessions,
		users:       users,
		tracking:    tracking,
		publisher:   publisher,
		locks:       newUserLocks(),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *SessionService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SessionService", operation, attrs...)
}

// StartSession begins a new ACTIVE session for the user, stopping any session
// the user still has running.
func (s *SessionService) StartSession(ctx context.Context, params StartSessionParams) (session WorkSession, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	if s.sessions == nil || s.users == nil {
		err = fmt.Errorf("session dependencies not configured")
		return
	}

	userID := strings.TrimSpace(params.UserID)
	logger := s.loggerWith(ctx, "StartSession", "user_id", userID)
	defer func() {
		if err != nil {
			if errors.Is(err, ErrTrackingNotAllowed) {
				logger.WarnContext(ctx, "session start denied", "error", err, "error_kind", ErrorKind(err))
				return
			}
			logger.ErrorContext(ctx, "failed to start session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("session_id", session.ID).InfoContext(ctx, "session started")
	}()

	if vErr := validateStartSession(userID, params); vErr.HasErrors() {
		err = vErr
		return
	}

	var user User
	user, err = s.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			err = ErrUserNotFound
		}
		return
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	// Read the clock under the lock so the stop of a running session never
	// predates its start.
	now := s.now()
	if s.tracking != nil {
		var decision TrackingDecision
		decision, err = s.tracking.CheckTracking(ctx, user, now)
		if err != nil {
			return
		}
		if !decision.Allowed {
			err = &TrackingNotAllowedError{NextWindow: decision.NextWindow}
			return
		}
	}

	var running []WorkSession
	running, err = s.sessions.ListSessions(ctx, SessionFilter{UserID: userID, Status: SessionActive})
	if err != nil {
		return
	}

	for _, previous := range running {
		var stopped WorkSession
		stopped, err = s.stopLocked(ctx, previous, now)
		if err != nil {
			if errors.Is(err, ErrAlreadyStopped) {
				err = nil
				continue
			}
			return
		}
		logger.InfoContext(ctx, "previous session stopped", "stopped_session_id", stopped.ID)
		publishEvent(ctx, s.publisher, logger, TopicSessions, Event{Type: EventSessionStopped, OccurredAt: now, Session: &stopped})
	}

	session, err = s.sessions.CreateSession(ctx, WorkSession{
		ID:                       s.idGenerator(),
		UserID:                   userID,
		TaskName:                 strings.TrimSpace(params.TaskName),
		EstimatedDurationMinutes: params.EstimatedDurationMinutes,
		StartTime:                now,
		Status:                   SessionActive,
		IdleWarningSent:          false,
	})
	if err != nil {
		return
	}

	publishEvent(ctx, s.publisher, logger, TopicSessions, Event{Type: EventSessionCreated, OccurredAt: now, Session: &session})
	return
}

// StopSession ends an ACTIVE session.
func (s *SessionService) StopSession(ctx context.Context, sessionID string) (session WorkSession, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("session repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "StopSession", "session_id", sessionID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to stop session", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "session stopped")
	}()

	var current WorkSession
	current, err = s.lockedSession(ctx, sessionID, func(current WorkSession) (WorkSession, error) {
		return s.stopLocked(ctx, current, s.now())
	})
	if err != nil {
		return
	}

	session = current
	publishEvent(ctx, s.publisher, logger, TopicSessions, Event{Type: EventSessionStopped, OccurredAt: *session.EndTime, Session: &session})
	return
}

// RecordIdleWarning marks that the idle warning for a session has been sent.
func (s *SessionService) RecordIdleWarning(ctx context.Context, sessionID string, checkedAt time.Time) (session WorkSession, err error) {
	if s == nil {
		err = fmt.Errorf("SessionService is nil")
		return
	}
	if s.sessions == nil {
		err = fmt.Errorf("session repository not configured")
		return
	}

	logger := s.loggerWith(ctx, "RecordIdleWarning", "session_id", sessionID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to record idle warning", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	session, err = s.lockedSession(ctx, sessionID, func(current WorkSession) (WorkSession, error) {
		if !current.IsActive() {
			return WorkSession{}, ErrAlreadyStopped
		}
		updated := current
		updated.IdleWarningSent = true
		checked := checkedAt
		updated.LastIdleCheckTime = &checked
		return s.updateActive(ctx, updated)
	})
	if err != nil {
		return
	}

	publishEvent(ctx, s.publisher, logger, TopicSessions, Event{Type: EventSessionUpdated, OccurredAt: checkedAt, Session: &session})
	return
}

// GetSession returns a single session.
func (s *SessionService) GetSession(ctx context.Context, sessionID string) (WorkSession, error) {
	if s == nil || s.sessions == nil {
		return WorkSession{}, fmt.Errorf("session repository not configured")
	}
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return WorkSession{}, mapSessionRepoError(err)
	}
	return session, nil
}

// ListSessions returns sessions matching filter, newest first.
func (s *SessionService) ListSessions(ctx context.Context, filter SessionFilter) ([]WorkSession, error) {
	if s == nil || s.sessions == nil {
		return nil, fmt.Errorf("session repository not configured")
	}
	sessions, err := s.sessions.ListSessions(ctx, filter)
	if err != nil {
		return nil, err
	}
	sortSessionsNewestFirst(sessions)
	return sessions, nil
}

// ListActiveSessions returns every ACTIVE session.
func (s *SessionService) ListActiveSessions(ctx context.Context) ([]WorkSession, error) {
	return s.ListSessions(ctx, SessionFilter{Status: SessionActive})
}

// ActiveSession returns the user's running session.
func (s *SessionService) ActiveSession(ctx context.Context, userID string) (WorkSession, error) {
	sessions, err := s.ListSessions(ctx, SessionFilter{UserID: userID, Status: SessionActive})
	if err != nil {
		return WorkSession{}, err
	}
	if len(sessions) == 0 {
		return WorkSession{}, ErrSessionNotFound
	}
	return sessions[0], nil
}

// EmployeeStats summarises a user's sessions that started within [from, to).
// Working days are counted in from's location.
func (s *SessionService) EmployeeStats(ctx context.Context, userID string, from, to time.Time) (stats EmployeeStats, err error) {
	if s == nil || s.sessions == nil || s.users == nil {
		err = fmt.Errorf("session dependencies not configured")
		return
	}
	if !from.Before(to) {
		vErr := &ValidationError{}
		vErr.add("to", "to must be after from")
		err = vErr
		return
	}

	if _, err = s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			err = ErrUserNotFound
		}
		return
	}

	var all []WorkSession
	all, err = s.sessions.ListSessions(ctx, SessionFilter{UserID: userID})
	if err != nil {
		return
	}

	now := s.now()
	stats = EmployeeStats{UserID: userID, From: from, To: to}
	days := make(map[string]struct{})
	var total time.Duration
	for _, session := range all {
		if session.IsActive() {
			active := session
			stats.ActiveSession = &active
		}
		if session.StartTime.Before(from) || !session.StartTime.Before(to) {
			continue
		}
		stats.Sessions = append(stats.Sessions, session)
		days[session.StartTime.In(from.Location()).Format(time.DateOnly)] = struct{}{}
		total += session.Duration(now)
	}

	sortSessionsNewestFirst(stats.Sessions)
	stats.WorkingDays = len(days)
	stats.TotalHours = math.Round(total.Hours()*100) / 100
	return
}

// lockedSession loads a session, takes its user's lock, reloads it and applies fn.
func (s *SessionService) lockedSession(ctx context.Context, sessionID string, fn func(WorkSession) (WorkSession, error)) (WorkSession, error) {
	current, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return WorkSession{}, mapSessionRepoError(err)
	}

	unlock := s.locks.Lock(current.UserID)
	defer unlock()

	current, err = s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return WorkSession{}, mapSessionRepoError(err)
	}
	return fn(current)
}

func (s *SessionService) stopLocked(ctx context.Context, current WorkSession, at time.Time) (WorkSession, error) {
	if !current.IsActive() {
		return WorkSession{}, ErrAlreadyStopped
	}
	stopped := current
	end := at
	stopped.EndTime = &end
	stopped.Status = SessionStopped
	return s.updateActive(ctx, stopped)
}

func (s *SessionService) updateActive(ctx context.Context, session WorkSession) (WorkSession, error) {
	updated, err := s.sessions.UpdateActiveSession(ctx, session)
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return WorkSession{}, ErrAlreadyStopped
		}
		return WorkSession{}, mapSessionRepoError(err)
	}
	return updated, nil
}

func validateStartSession(userID string, params StartSessionParams) *ValidationError {
	vErr := &ValidationError{}
	if userID == "" {
		vErr.add("user_id", "user id is required")
	}
	if tooLong(strings.TrimSpace(params.TaskName), 255) {
		vErr.add("task_name", "task name must be at most 255 characters")
	}
	if params.EstimatedDurationMinutes != nil && *params.EstimatedDurationMinutes < 0 {
		vErr.add("estimated_duration_minutes", "estimated duration must not be negative")
	}
	return vErr
}

func sortSessionsNewestFirst(sessions []WorkSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].ID > sessions[j].ID
		}
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}

func mapSessionRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}
