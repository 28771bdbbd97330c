package application

import (
	"context"
	"log/slog"
)

// EventPublisher broadcasts state changes. Delivery is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// publishEvent sends an event and logs failures without returning them.
func publishEvent(ctx context.Context, publisher EventPublisher, logger *slog.Logger, topic string, event Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, topic, event); err != nil {
		logger.WarnContext(ctx, "failed to publish event",
			"topic", topic,
			"event_type", string(event.Type),
			"error", err,
		)
	}
}

// Notifier alerts administrators about idle sessions.
type Notifier interface {
	SendIdleWarning(ctx context.Context, session WorkSession, user User, idleMinutes int) error
	SendAutoStop(ctx context.Context, session WorkSession, user User, idleMinutes int) error
}
