package notify

import (
	"context"
	"log/slog"

	"github.com/example/worktrack/internal/application"
)

// LogNotifier records alerts in the log. It is used when SMTP is not configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "log_notifier")}
}

func (n *LogNotifier) SendIdleWarning(ctx context.Context, session application.WorkSession, user application.User, idleMinutes int) error {
	n.logger.WarnContext(ctx, "idle warning",
		"session_id", session.ID,
		"user_id", user.UserID,
		"name", user.FullName(),
		"idle_minutes", idleMinutes,
	)
	return nil
}

func (n *LogNotifier) SendAutoStop(ctx context.Context, session application.WorkSession, user application.User, idleMinutes int) error {
	n.logger.WarnContext(ctx, "session auto-stopped for inactivity",
		"session_id", session.ID,
		"user_id", user.UserID,
		"name", user.FullName(),
		"idle_minutes", idleMinutes,
	)
	return nil
}
