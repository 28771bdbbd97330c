package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/example/worktrack/internal/logging"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// serviceLogger scopes a logger to one service operation. The request logger
// carried on ctx wins over base.
func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = defaultLogger(base)
	}

	args := make([]any, 0, 4+len(attrs))
	args = append(args, "service", serviceName)
	if operation != "" {
		args = append(args, "operation", operation)
	}
	return logger.With(append(args, attrs...)...)
}

// ErrorKind maps sentinel and validation errors to a stable logging label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, ErrAlreadyStopped):
		return "already_stopped"
	case errors.Is(err, ErrTrackingNotAllowed):
		return "tracking_not_allowed"
	case errors.Is(err, ErrRuleNotFound):
		return "rule_not_found"
	case errors.Is(err, ErrInvalidRuleConfiguration):
		return "invalid_rule_configuration"
	case errors.Is(err, ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, ErrDefaultRuleImmutable):
		return "default_rule_immutable"
	case errors.Is(err, ErrRuleInUse):
		return "rule_in_use"
	case errors.Is(err, ErrCannotDeleteDefault):
		return "cannot_delete_default"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}

	return "unexpected"
}
