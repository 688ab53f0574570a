package realtime

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one realtime notification. Events without a UserID are
// admin-only; user events also reach admin streams.
type Event struct {
	Type      string         `json:"type"`
	UserID    string         `json:"-"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Subscription is one open SSE stream. Admin subscriptions see every event;
// user subscriptions only their own.
type Subscription struct {
	userID string
	admin  bool
	ch     chan Event
	hub    *Hub
	once   sync.Once
}

// Events is the stream channel; it closes when the subscription is dropped.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

// Hub fans events out to live subscribers. Delivery is best effort: a
// subscriber that cannot keep up loses events rather than blocking the
// publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(userID string, admin bool) *Subscription {
	sub := &Subscription{
		userID: userID,
		admin:  admin,
		ch:     make(chan Event, 16),
		hub:    h,
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
	close(sub.ch)
}

func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.admin && (ev.UserID == "" || sub.userID != ev.UserID) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			zap.L().Debug("realtime subscriber lagging, event dropped",
				zap.String("type", ev.Type),
				zap.String("user_id", sub.userID),
			)
		}
	}
}

// Subscribers reports the number of open streams.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
