package broadcast

import (
	"sync"
	"sync/atomic"
)

// Hub fans messages out to every subscriber of a session. Delivery is
// non-blocking: a subscriber whose buffer is full misses the message.
type Hub struct {
	mu      sync.RWMutex
	nextID  uint64
	subs    map[string]map[uint64]chan any
	dropped atomic.Uint64
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]chan any)}
}

// Subscribe registers a listener for sessionID. The returned cancel func
// unregisters it and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(sessionID string, buffer int) (<-chan any, func()) {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan any, buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[uint64]chan any)
		h.subs[sessionID] = set
	}
	set[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			set, ok := h.subs[sessionID]
			if !ok {
				return
			}
			if _, live := set[id]; !live {
				return
			}
			delete(set, id)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Broadcast delivers msg to all current subscribers of sessionID and returns
// how many received it.
func (h *Hub) Broadcast(sessionID string, msg any) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, ch := range h.subs[sessionID] {
		select {
		case ch <- msg:
			delivered++
		default:
			h.dropped.Add(1)
		}
	}
	return delivered
}

// Close drops every subscriber of sessionID.
func (h *Hub) Close(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs[sessionID] {
		close(ch)
		delete(h.subs[sessionID], id)
	}
	delete(h.subs, sessionID)
}

func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
