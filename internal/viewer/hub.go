package viewer

import (
	"sync"

	"github.com/google/uuid"
)

// hub fans scene updates out to connected clients. Slow clients miss
// updates rather than stalling the render loop.
type hub struct {
	subscribers  map[string]chan []byte
	subscriberMu sync.Mutex
	closing      bool
}

func newHub() *hub {
	return &hub{subscribers: make(map[string]chan []byte)}
}

// Subscribe registers a client. The channel holds at most one pending
// scene.
func (h *hub) Subscribe() (string, chan []byte) {
	id := uuid.NewString()
	ch := make(chan []byte, 1)
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if h.closing {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a client and closes its channel.
func (h *hub) Unsubscribe(id string) {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Broadcast offers payload to every client without blocking. A client that
// has not consumed the previous scene gets the new one instead.
func (h *hub) Broadcast(payload []byte) {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- payload:
		default:
		}
	}
}

// Count returns the number of connected clients.
func (h *hub) Count() int {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	return len(h.subscribers)
}

// Close disconnects every client.
func (h *hub) Close() {
	h.subscriberMu.Lock()
	defer h.subscriberMu.Unlock()
	h.closing = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
