package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ActivityLogRepository captures the persistence operations for activity signals.
//
// ListActivityLogs returns oldest first. ListActivityLogsSince returns entries
// logged strictly after since, newest first.
type ActivityLogRepository interface {
	CreateActivityLog(ctx context.Context, log ActivityLog) (ActivityLog, error)
	ListActivityLogs(ctx context.Context, sessionID string) ([]ActivityLog, error)
	ListActivityLogsSince(ctx context.Context, sessionID string, since time.Time) ([]ActivityLog, error)
}

type sessionLookup interface {
	GetSession(ctx context.Context, id string) (WorkSession, error)
}

// ActivityService records client activity signals for running sessions.
type ActivityService struct {
	logs        ActivityLogRepository
	sessions    sessionLookup
	publisher   EventPublisher
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewActivityService constructs an activity service.
func NewActivityService(logs ActivityLogRepository, sessions sessionLookup, idGenerator func() string, now func() time.Time) *ActivityService {
	return NewActivityServiceWithLogger(logs, sessions, nil, idGenerator, now, nil)
}

// NewActivityServiceWithLogger constructs an activity service with an event publisher and logger.
func NewActivityServiceWithLogger(logs ActivityLogRepository, sessions sessionLookup, publisher EventPublisher, idGenerator func() string, now func() time.Time, logger *slog.Logger) *ActivityService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &ActivityService{
		logs:        logs,
		sessions:    sessions,
		publisher:   publisher,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

// LogActivity appends a signal to an ACTIVE session. The timestamp is assigned
// by the server.
func (s *ActivityService) LogActivity(ctx context.Context, params LogActivityParams) (entry ActivityLog, err error) {
	if s == nil {
		err = fmt.Errorf("ActivityService is nil")
		return
	}
	if s.logs == nil || s.sessions == nil {
		err = fmt.Errorf("activity dependencies not configured")
		return
	}

	logger := serviceLogger(ctx, s.logger, "ActivityService", "LogActivity", "session_id", params.SessionID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to log activity", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.DebugContext(ctx, "activity logged", "status", string(entry.Status))
	}()

	metadata := plainText(params.Metadata)
	vErr := &ValidationError{}
	if params.SessionID == "" {
		vErr.add("session_id", "session id is required")
	}
	if params.Status != ActivityActive && params.Status != ActivityIdle {
		vErr.add("status", "status must be ACTIVE or IDLE")
	}
	if tooLong(metadata, MaxMetadataLength) {
		vErr.add("metadata", fmt.Sprintf("metadata must be at most %d characters", MaxMetadataLength))
	}
	if vErr.HasErrors() {
		err = vErr
		return
	}

	var session WorkSession
	session, err = s.sessions.GetSession(ctx, params.SessionID)
	if err != nil {
		err = mapSessionRepoError(err)
		return
	}
	if !session.IsActive() {
		err = ErrAlreadyStopped
		return
	}

	entry, err = s.logs.CreateActivityLog(ctx, ActivityLog{
		ID:        s.idGenerator(),
		SessionID: session.ID,
		LoggedAt:  s.now(),
		Status:    params.Status,
		Metadata:  metadata,
	})
	if err != nil {
		return
	}

	publishEvent(ctx, s.publisher, logger, ActivityTopic(session.ID), Event{Type: EventActivityLogged, OccurredAt: entry.LoggedAt, Activity: &entry})
	return
}

// ListActivityLogs returns a session's signals, oldest first.
func (s *ActivityService) ListActivityLogs(ctx context.Context, sessionID string) ([]ActivityLog, error) {
	if s == nil || s.logs == nil || s.sessions == nil {
		return nil, fmt.Errorf("activity dependencies not configured")
	}
	if _, err := s.sessions.GetSession(ctx, sessionID); err != nil {
		return nil, mapSessionRepoError(err)
	}
	logs, err := s.logs.ListActivityLogs(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return logs, nil
}

// RecentActivity returns signals logged after since, newest first.
func (s *ActivityService) RecentActivity(ctx context.Context, sessionID string, since time.Time) ([]ActivityLog, error) {
	if s == nil || s.logs == nil {
		return nil, fmt.Errorf("activity repository not configured")
	}
	return s.logs.ListActivityLogsSince(ctx, sessionID, since)
}
