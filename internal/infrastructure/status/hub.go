// Package status fans call transition events out to in-process
// subscribers. The API bridges NATS status traffic into one Hub and
// every SSE connection subscribes to it.
package status

import (
	"context"
	"sync"

	"github.com/kirillkom/sales-coach/internal/core/domain"
)

const subscriberBuffer = 8

// Hub is a per-call fan-out. Publishing never blocks: a slow subscriber
// loses events (the monotonic status contract lets consumers catch up
// from any later event) and a publish with no subscribers is dropped.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[int]chan domain.StatusEvent
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int]chan domain.StatusEvent)}
}

// Publish delivers an event to every open subscriber of the call id.
// Implements ports.StatusPublisher for in-process wiring and tests.
func (h *Hub) PublishStatus(_ context.Context, event domain.StatusEvent) error {
	h.Broadcast(event)
	return nil
}

// Broadcast is the non-failing form used by the NATS bridge.
func (h *Hub) Broadcast(event domain.StatusEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[event.CallID] {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscribeStatus opens a subscription for one call id. The returned
// cancel func is idempotent and safe to call concurrently with
// Broadcast; after cancel the channel is closed.
func (h *Hub) SubscribeStatus(_ context.Context, callID string) (<-chan domain.StatusEvent, func(), error) {
	ch := make(chan domain.StatusEvent, subscriberBuffer)

	h.mu.Lock()
	h.next++
	id := h.next
	if h.subs[callID] == nil {
		h.subs[callID] = make(map[int]chan domain.StatusEvent)
	}
	h.subs[callID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[callID], id)
			if len(h.subs[callID]) == 0 {
				delete(h.subs, callID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}
