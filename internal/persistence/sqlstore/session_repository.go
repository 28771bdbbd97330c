package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/worktrack/internal/persistence"
)

// SessionRepository implements persistence.WorkSessionRepository. The
// partial unique index work_sessions_one_active_per_user keeps at most one
// ACTIVE row per user across processes.
type SessionRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewSessionRepository creates a work session repository on pool.
func NewSessionRepository(pool *ConnectionPool) *SessionRepository {
	return &SessionRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const sessionColumns = `id, user_id, task_name, estimated_duration_minutes, start_time, end_time, status, idle_warning_sent, last_idle_check_time`

// CreateSession inserts a new session.
func (r *SessionRepository) CreateSession(ctx context.Context, session persistence.WorkSession) error {
	if session.ID == "" || session.UserID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO work_sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx, query,
			session.ID,
			session.UserID,
			session.TaskName,
			nullInt64(session.EstimatedDurationMinutes),
			r.helper.timeArg(session.StartTime),
			r.helper.nullTimeArg(session.EndTime),
			session.Status,
			session.IdleWarningSent,
			r.helper.nullTimeArg(session.LastIdleCheckTime),
		)
		return err
	})
}

// GetSession retrieves a session by ID.
func (r *SessionRepository) GetSession(ctx context.Context, id string) (persistence.WorkSession, error) {
	row := r.helper.QueryRow(ctx, `SELECT `+sessionColumns+` FROM work_sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.WorkSession{}, persistence.ErrNotFound
		}
		return persistence.WorkSession{}, r.mapper.MapError(err)
	}
	return session, nil
}

// UpdateActiveSession writes the mutable fields of a session only while the
// stored row is ACTIVE. The losing side of a stop race gets ErrConflict.
func (r *SessionRepository) UpdateActiveSession(ctx context.Context, session persistence.WorkSession) error {
	query := `
		UPDATE work_sessions
		SET task_name = ?, estimated_duration_minutes = ?, end_time = ?, status = ?,
		    idle_warning_sent = ?, last_idle_check_time = ?
		WHERE id = ? AND status = ?
	`
	var affected int64
	err := r.retry.WithRetry(ctx, func() error {
		result, err := r.helper.Exec(ctx, query,
			session.TaskName,
			nullInt64(session.EstimatedDurationMinutes),
			r.helper.nullTimeArg(session.EndTime),
			session.Status,
			session.IdleWarningSent,
			r.helper.nullTimeArg(session.LastIdleCheckTime),
			session.ID,
			persistence.StatusActive,
		)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = r.helper.QueryRow(ctx, `SELECT COUNT(*) FROM work_sessions WHERE id = ?`, session.ID).Scan(&exists)
	if err != nil {
		return r.mapper.MapError(err)
	}
	if exists == 0 {
		return persistence.ErrNotFound
	}
	return persistence.ErrConflict
}

// ListSessions returns matching sessions, newest first.
func (r *SessionRepository) ListSessions(ctx context.Context, filter persistence.SessionFilter) ([]persistence.WorkSession, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, strings.ToUpper(filter.Status))
	}

	query := `SELECT ` + sessionColumns + ` FROM work_sessions`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY start_time DESC, id DESC`

	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	sessions := make([]persistence.WorkSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return sessions, nil
}

func scanSession(row rowScanner) (persistence.WorkSession, error) {
	var (
		session                    persistence.WorkSession
		estimated                  sql.NullInt64
		start, end, lastIdleCheck timeColumn
	)
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.TaskName,
		&estimated,
		&start,
		&end,
		&session.Status,
		&session.IdleWarningSent,
		&lastIdleCheck,
	); err != nil {
		return persistence.WorkSession{}, err
	}
	if estimated.Valid {
		minutes := estimated.Int64
		session.EstimatedDurationMinutes = &minutes
	}
	session.StartTime = start.Time
	session.EndTime = end.ptr()
	session.LastIdleCheckTime = lastIdleCheck.ptr()
	return session, nil
}

func nullInt64(value *int64) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *value, Valid: true}
}
