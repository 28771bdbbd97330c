package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/example/worktrack/internal/persistence"
)

// ActivityLogRepository implements persistence.ActivityLogRepository.
type ActivityLogRepository struct {
	pool   *ConnectionPool
	helper *QueryHelper
	mapper *ErrorMapper
	retry  *RetryHelper
}

// NewActivityLogRepository creates an activity log repository on pool.
func NewActivityLogRepository(pool *ConnectionPool) *ActivityLogRepository {
	return &ActivityLogRepository{
		pool:   pool,
		helper: NewQueryHelper(pool),
		mapper: NewErrorMapper(),
		retry:  NewRetryHelper(DefaultRetryConfig()),
	}
}

const activityColumns = `id, session_id, logged_at, status, metadata`

// CreateActivityLog appends a signal.
func (r *ActivityLogRepository) CreateActivityLog(ctx context.Context, log persistence.ActivityLog) error {
	if log.ID == "" || log.SessionID == "" {
		return persistence.ErrConstraintViolation
	}
	return r.retry.WithRetry(ctx, func() error {
		_, err := r.helper.Exec(ctx,
			`INSERT INTO activity_logs (`+activityColumns+`) VALUES (?, ?, ?, ?, ?)`,
			log.ID,
			log.SessionID,
			r.helper.timeArg(log.LoggedAt),
			log.Status,
			log.Metadata,
		)
		return err
	})
}

// ListActivityLogs returns a session's signals, oldest first.
func (r *ActivityLogRepository) ListActivityLogs(ctx context.Context, sessionID string) ([]persistence.ActivityLog, error) {
	return r.list(ctx,
		`SELECT `+activityColumns+` FROM activity_logs WHERE session_id = ? ORDER BY logged_at ASC, id ASC`,
		sessionID,
	)
}

// ListActivityLogsSince returns signals logged strictly after since, newest first.
func (r *ActivityLogRepository) ListActivityLogsSince(ctx context.Context, sessionID string, since time.Time) ([]persistence.ActivityLog, error) {
	return r.list(ctx,
		`SELECT `+activityColumns+` FROM activity_logs WHERE session_id = ? AND logged_at > ? ORDER BY logged_at DESC, id DESC`,
		sessionID,
		r.helper.timeArg(since),
	)
}

func (r *ActivityLogRepository) list(ctx context.Context, query string, args ...any) ([]persistence.ActivityLog, error) {
	rows, err := r.helper.Query(ctx, query, args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	logs := make([]persistence.ActivityLog, 0)
	for rows.Next() {
		var (
			log      persistence.ActivityLog
			loggedAt timeColumn
		)
		if err := rows.Scan(&log.ID, &log.SessionID, &loggedAt, &log.Status, &log.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan activity log: %w", err)
		}
		log.LoggedAt = loggedAt.Time
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, r.mapper.MapError(err)
	}
	return logs, nil
}
