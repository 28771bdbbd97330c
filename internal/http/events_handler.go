package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/worktrack/internal/events"
)

type eventSource interface {
	Subscribe(topics ...string) *events.Subscription
}

// EventsHandler streams broker messages as server-sent events.
type EventsHandler struct {
	source    eventSource
	heartbeat time.Duration
	responder responder
	logger    *slog.Logger
}

// NewEventsHandler builds the stream handler. A non-positive heartbeat
// defaults to 15 seconds.
func NewEventsHandler(source eventSource, heartbeat time.Duration, logger *slog.Logger) *EventsHandler {
	base := defaultLogger(logger)
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &EventsHandler{source: source, heartbeat: heartbeat, responder: newResponder(base), logger: base}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}

	var topics []string
	for _, topic := range r.URL.Query()["topic"] {
		if topic = strings.TrimSpace(topic); topic != "" {
			topics = append(topics, topic)
		}
	}

	sub := h.source.Subscribe(topics...)
	defer sub.Close()

	logger := handlerLogger(r.Context(), h.logger, "EventsHandler", "Stream", "topics", topics)
	logger.InfoContext(r.Context(), "event stream opened")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.InfoContext(r.Context(), "event stream closed by client")
			return
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case msg, open := <-sub.C():
			if !open {
				logger.InfoContext(r.Context(), "event stream closed by server")
				return
			}
			data, err := json.Marshal(toEventDTO(msg))
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event.Type, data)
			flusher.Flush()
		}
	}
}

type eventDTO struct {
	Type       string       `json:"type"`
	Topic      string       `json:"topic"`
	OccurredAt time.Time    `json:"occurredAt"`
	Session    *sessionDTO  `json:"session,omitempty"`
	Activity   *activityDTO `json:"activity,omitempty"`
	Employee   *employeeDTO `json:"employee,omitempty"`
	Rule       *ruleDTO     `json:"rule,omitempty"`
}

func toEventDTO(msg events.Message) eventDTO {
	e := msg.Event
	dto := eventDTO{Type: string(e.Type), Topic: msg.Topic, OccurredAt: e.OccurredAt}
	if e.Session != nil {
		s := toSessionDTO(*e.Session)
		dto.Session = &s
	}
	if e.Activity != nil {
		a := toActivityDTO(*e.Activity)
		dto.Activity = &a
	}
	if e.Employee != nil {
		u := toEmployeeDTO(*e.Employee)
		dto.Employee = &u
	}
	if e.Rule != nil {
		r := toRuleDTO(*e.Rule, 0)
		dto.Rule = &r
	}
	return dto
}
