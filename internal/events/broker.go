// Package events fans out application events to in-process subscribers.
package events

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/example/worktrack/internal/application"
)

// ErrClosed is returned when publishing to a closed broker.
var ErrClosed = errors.New("events: broker closed")

const defaultBuffer = 64

// Message is an event together with the topic it was published on.
type Message struct {
	Topic string
	Event application.Event
}

// Broker delivers published events to every matching subscription.
// Publish never blocks: a subscriber whose buffer is full misses the event.
type Broker struct {
	mu      sync.RWMutex
	subs    map[uint64]*Subscription
	nextID  uint64
	buffer  int
	closed  bool
	dropped atomic.Uint64
	logger  *slog.Logger
}

// Subscription receives messages for the topics it was created with.
type Subscription struct {
	id     uint64
	topics []string
	ch     chan Message
	broker *Broker
	once   sync.Once
}

// NewBroker creates a broker whose subscriptions buffer up to buffer messages.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: logger.With("component", "event_broker"),
	}
}

// Subscribe registers interest in topics. A topic ending in "." matches every
// topic with that prefix; no topics matches everything.
func (b *Broker) Subscribe(topics ...string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		topics: append([]string(nil), topics...),
		ch:     make(chan Message, b.buffer),
		broker: b,
	}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish implements application.EventPublisher.
func (b *Broker) Publish(ctx context.Context, topic string, event application.Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	msg := Message{Topic: topic, Event: event}
	for _, sub := range b.subs {
		if !sub.matches(topic) {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			b.dropped.Add(1)
			b.logger.WarnContext(ctx, "subscriber buffer full, dropping event",
				"subscription", sub.id,
				"topic", topic,
				"event_type", string(event.Type),
			)
		}
	}
	return nil
}

// Dropped reports how many deliveries were skipped because a buffer was full.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// Subscribers returns the number of open subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscription and rejects further publishes.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	sub.once.Do(func() { close(sub.ch) })
}

// C returns the delivery channel. It is closed by Close or when the broker closes.
func (s *Subscription) C() <-chan Message {
	return s.ch
}

// Close stops delivery to the subscription.
func (s *Subscription) Close() {
	s.broker.unsubscribe(s)
}

func (s *Subscription) matches(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	for _, t := range s.topics {
		if t == topic {
			return true
		}
		if strings.HasSuffix(t, ".") && strings.HasPrefix(topic, t) {
			return true
		}
	}
	return false
}
