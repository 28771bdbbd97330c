// Package monitor periodically scans running sessions for idleness, warns
// administrators once and stops sessions that stay idle too long.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/worktrack/internal/application"
	"github.com/example/worktrack/internal/idle"
)

// ErrTickInProgress is returned by Tick when another tick is still running.
var ErrTickInProgress = errors.New("monitor: tick already in progress")

// SessionManager is the subset of the session service the monitor drives.
type SessionManager interface {
	ListActiveSessions(ctx context.Context) ([]application.WorkSession, error)
	StopSession(ctx context.Context, sessionID string) (application.WorkSession, error)
	RecordIdleWarning(ctx context.Context, sessionID string, checkedAt time.Time) (application.WorkSession, error)
}

// ActivitySource returns signals logged strictly after since, newest first.
type ActivitySource interface {
	RecentActivity(ctx context.Context, sessionID string, since time.Time) ([]application.ActivityLog, error)
}

// Recorder receives monitor measurements.
type Recorder interface {
	TickCompleted(duration time.Duration, failed bool)
	TickSkipped()
	IdleWarningSent()
	SessionAutoStopped()
	NotificationFailed(kind string)
}

// TickResult summarises one pass over the active sessions.
type TickResult struct {
	Scanned     int
	Skipped     int
	Warned      int
	AutoStopped int
	Failed      int
}

// IdleMonitor applies the idle policy to every ACTIVE session on each tick.
type IdleMonitor struct {
	cfg      Config
	sessions SessionManager
	activity ActivitySource
	users    application.UserDirectory
	notifier application.Notifier
	recorder Recorder
	now      func() time.Time
	logger   *slog.Logger

	busy     atomic.Bool
	inflight sync.WaitGroup
}

// Option customises an IdleMonitor.
type Option func(*IdleMonitor)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *IdleMonitor) {
		if r != nil {
			m.recorder = r
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *IdleMonitor) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *IdleMonitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New constructs an IdleMonitor. It returns an error when cfg is invalid.
func New(cfg Config, sessions SessionManager, activity ActivitySource, users application.UserDirectory, notifier application.Notifier, opts ...Option) (*IdleMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sessions == nil || activity == nil || users == nil {
		return nil, fmt.Errorf("monitor: sessions, activity and users are required")
	}

	m := &IdleMonitor{
		cfg:      cfg,
		sessions: sessions,
		activity: activity,
		users:    users,
		notifier: notifier,
		recorder: nopRecorder{},
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "idle_monitor")

	if cfg.lookbackShort() {
		m.logger.Warn("idle warning threshold exceeds activity lookback; warnings rely on ACTIVE signals ageing out",
			"warning_minutes", cfg.WarningMinutes,
			"lookback", cfg.Lookback,
		)
	}
	return m, nil
}

// Run waits one interval, then ticks every interval until ctx is cancelled.
// A tick that fires while the previous one is still running is skipped.
// Run returns after the in-flight tick has finished.
func (m *IdleMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info("idle monitor started",
		"interval", m.cfg.Interval,
		"warning_minutes", m.cfg.WarningMinutes,
		"auto_stop_minutes", m.cfg.AutoStopMinutes,
	)

	for {
		select {
		case <-ctx.Done():
			m.inflight.Wait()
			m.logger.Info("idle monitor stopped")
			return
		case <-ticker.C:
			if !m.busy.CompareAndSwap(false, true) {
				m.recorder.TickSkipped()
				m.logger.Warn("previous idle check still running, skipping tick")
				continue
			}
			m.inflight.Add(1)
			go func() {
				defer m.inflight.Done()
				defer m.busy.Store(false)
				if _, err := m.tick(ctx); err != nil {
					m.logger.Error("idle check failed", "error", err)
				}
			}()
		}
	}
}

// Tick runs one idle check. It returns ErrTickInProgress without doing any
// work when another tick is running.
func (m *IdleMonitor) Tick(ctx context.Context) (TickResult, error) {
	if !m.busy.CompareAndSwap(false, true) {
		m.recorder.TickSkipped()
		return TickResult{}, ErrTickInProgress
	}
	defer m.busy.Store(false)
	return m.tick(ctx)
}

func (m *IdleMonitor) tick(ctx context.Context) (result TickResult, err error) {
	started := time.Now()
	defer func() {
		m.recorder.TickCompleted(time.Since(started), err != nil)
	}()

	sessions, err := m.sessions.ListActiveSessions(ctx)
	if err != nil {
		return result, fmt.Errorf("list active sessions: %w", err)
	}

	now := m.now()
	for _, session := range sessions {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Scanned++

		res, err := m.check(ctx, session, now)
		if err != nil {
			result.Failed++
			m.logger.ErrorContext(ctx, "idle check failed for session",
				"session_id", session.ID,
				"user_id", session.UserID,
				"error", err,
				"error_kind", application.ErrorKind(err),
			)
			continue
		}
		switch res {
		case outcomeWarned:
			result.Warned++
		case outcomeStopped:
			result.AutoStopped++
		case outcomeSkipped:
			result.Skipped++
		}
	}

	if result.Warned > 0 || result.AutoStopped > 0 || result.Failed > 0 {
		m.logger.InfoContext(ctx, "idle check completed",
			"scanned", result.Scanned,
			"warned", result.Warned,
			"auto_stopped", result.AutoStopped,
			"failed", result.Failed,
		)
	}
	return result, nil
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSkipped
	outcomeWarned
	outcomeStopped
)

func (m *IdleMonitor) check(ctx context.Context, session application.WorkSession, now time.Time) (outcome, error) {
	logs, err := m.activity.RecentActivity(ctx, session.ID, idle.Since(now, m.cfg.Lookback))
	if err != nil {
		return outcomeNone, fmt.Errorf("load recent activity: %w", err)
	}
	if len(logs) == 0 {
		return outcomeSkipped, nil
	}

	observations := make([]idle.Observation, len(logs))
	for i, l := range logs {
		observations[i] = idle.Observation{At: l.LoggedAt, Idle: l.Status == application.ActivityIdle}
	}
	idleMinutes := idle.ContinuousIdleMinutes(observations, now)

	logger := m.logger.With("session_id", session.ID, "user_id", session.UserID, "idle_minutes", idleMinutes)

	switch {
	case idleMinutes >= m.cfg.AutoStopMinutes:
		return m.autoStop(ctx, logger, session, idleMinutes)
	case idleMinutes >= m.cfg.WarningMinutes && !session.IdleWarningSent:
		return m.warn(ctx, logger, session, idleMinutes, now)
	default:
		return outcomeNone, nil
	}
}

func (m *IdleMonitor) autoStop(ctx context.Context, logger *slog.Logger, session application.WorkSession, idleMinutes int) (outcome, error) {
	user, found, err := m.lookupUser(ctx, session.UserID)
	if err != nil {
		logger.WarnContext(ctx, "could not resolve user for auto-stop notification", "error", err)
	}
	if found && m.notifier != nil {
		if err := m.notifier.SendAutoStop(ctx, session, user, idleMinutes); err != nil {
			m.recorder.NotificationFailed("auto_stop")
			logger.WarnContext(ctx, "failed to send auto-stop notification", "error", err)
		}
	}

	if _, err := m.sessions.StopSession(ctx, session.ID); err != nil {
		if errors.Is(err, application.ErrAlreadyStopped) {
			logger.InfoContext(ctx, "session already stopped before auto-stop")
			return outcomeNone, nil
		}
		return outcomeNone, fmt.Errorf("auto-stop session: %w", err)
	}

	m.recorder.SessionAutoStopped()
	logger.InfoContext(ctx, "idle session auto-stopped")
	return outcomeStopped, nil
}

func (m *IdleMonitor) warn(ctx context.Context, logger *slog.Logger, session application.WorkSession, idleMinutes int, now time.Time) (outcome, error) {
	user, found, err := m.lookupUser(ctx, session.UserID)
	if err != nil {
		return outcomeNone, fmt.Errorf("resolve user: %w", err)
	}
	if !found {
		logger.WarnContext(ctx, "user not found for idle warning, leaving session unmarked")
		return outcomeSkipped, nil
	}

	if m.notifier != nil {
		if err := m.notifier.SendIdleWarning(ctx, session, user, idleMinutes); err != nil {
			m.recorder.NotificationFailed("idle_warning")
			logger.WarnContext(ctx, "failed to send idle warning", "error", err)
		}
	}

	if _, err := m.sessions.RecordIdleWarning(ctx, session.ID, now); err != nil {
		if errors.Is(err, application.ErrAlreadyStopped) {
			return outcomeNone, nil
		}
		return outcomeNone, fmt.Errorf("record idle warning: %w", err)
	}

	m.recorder.IdleWarningSent()
	logger.InfoContext(ctx, "idle warning sent")
	return outcomeWarned, nil
}

func (m *IdleMonitor) lookupUser(ctx context.Context, userID string) (application.User, bool, error) {
	user, err := m.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, application.ErrNotFound) || errors.Is(err, application.ErrUserNotFound) {
			return application.User{}, false, nil
		}
		return application.User{}, false, err
	}
	return user, true, nil
}

type nopRecorder struct{}

func (nopRecorder) TickCompleted(time.Duration, bool) {}
func (nopRecorder) TickSkipped()                      {}
func (nopRecorder) IdleWarningSent()                  {}
func (nopRecorder) SessionAutoStopped()               {}
func (nopRecorder) NotificationFailed(string)         {}
