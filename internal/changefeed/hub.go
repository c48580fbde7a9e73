// Package changefeed delivers bookmark change events to the subscribers of
// the user who owns the changed rows. It is the push side of the realtime
// contract: clients re-fetch on every event they receive.
package changefeed

import (
	"context"
	"sync"

	"github.com/patric-chuzhbe/smartmark/internal/models"
)

// Publisher accepts change events produced by mutations.
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// Nop discards events. It is used when the database emits notifications
// on its own and the service must not publish a second copy.
type Nop struct{}

func (Nop) Publish(context.Context, models.ChangeEvent) error { return nil }

type subscription struct {
	id uint64
	ch chan models.ChangeEvent
}

// Hub fans change events out to per-user subscribers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]subscription
	nextID      uint64
	bufferSize  int
	closed      bool
}

// NewHub creates a hub whose subscriber channels hold up to bufferSize
// pending events.
func NewHub(bufferSize int) *Hub {
	if bufferSize < 1 {
		bufferSize = 1
	}

	return &Hub{
		subscribers: make(map[string][]subscription),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers interest in the changes of one user.
// The returned cancel func removes the subscription and closes the channel;
// calling it more than once is safe.
func (h *Hub) Subscribe(userID string) (<-chan models.ChangeEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		ch := make(chan models.ChangeEvent)
		close(ch)
		return ch, func() {}
	}

	h.nextID++
	sub := subscription{
		id: h.nextID,
		ch: make(chan models.ChangeEvent, h.bufferSize),
	}
	h.subscribers[userID] = append(h.subscribers[userID], sub)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.unsubscribe(userID, sub.id)
		})
	}

	return sub.ch, cancel
}

func (h *Hub) unsubscribe(userID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[userID]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		close(sub.ch)
		subs = append(subs[:i:i], subs[i+1:]...)
		break
	}

	if len(subs) == 0 {
		delete(h.subscribers, userID)
		return
	}
	h.subscribers[userID] = subs
}

// Publish delivers the event to every subscriber of event.UserID.
// A subscriber whose buffer is full misses the event: it already has a
// pending one, and any pending event makes it re-fetch everything.
func (h *Hub) Publish(_ context.Context, event models.ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscribers[event.UserID] {
		select {
		case sub.ch <- event:
		default:
		}
	}

	return nil
}

// Close ends every subscription by closing its channel. Later subscribers
// get an already closed channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for userID, subs := range h.subscribers {
		for _, sub := range subs {
			close(sub.ch)
		}
		delete(h.subscribers, userID)
	}
}

// SubscriberCount returns the number of live subscriptions for a user.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers[userID])
}
