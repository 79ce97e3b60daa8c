package notifier

import (
	"context"
	"sync"

	"github.com/efbdata/impact_dashboard/models"
)

const defaultBuffer = 64

// Hub fans change events out to in-process subscribers. A subscriber that
// cannot keep up is dropped and its channel closed; it has to re-fetch.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]chan models.ChangeEvent
	next   uint64
	buffer int
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Hub{subs: map[uint64]chan models.ChangeEvent{}, buffer: buffer}
}

// Subscribe registers a subscriber. The returned cancel func is idempotent.
func (h *Hub) Subscribe() (<-chan models.ChangeEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan models.ChangeEvent, h.buffer)
	h.subs[id] = ch
	return ch, func() { h.remove(id) }
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(ch)
	}
}

// Publish never blocks.
func (h *Hub) Publish(ctx context.Context, event models.ChangeEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			delete(h.subs, id)
			close(ch)
		}
	}
	return nil
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
