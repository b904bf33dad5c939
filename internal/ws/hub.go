package ws

import "sync"

// Hub tracks the surface views served by this process.
type Hub struct {
	mu       sync.Mutex
	views    map[*View]string
	maxConns int
}

// NewHub returns a hub that admits at most maxConns views; maxConns <= 0
// means unlimited.
func NewHub(maxConns int) *Hub {
	return &Hub{views: make(map[*View]string), maxConns: maxConns}
}

// Reserve admits v before its session exists. Bind attaches the session id
// once known.
func (h *Hub) Reserve(v *View) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxConns > 0 && len(h.views) >= h.maxConns {
		return ErrTooManyConnections
	}
	h.views[v] = ""
	return nil
}

func (h *Hub) Bind(v *View, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.views[v]; ok {
		h.views[v] = sessionID
	}
}

func (h *Hub) Remove(v *View) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.views, v)
}

func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

// CloseAll closes every view's connection. Read loops then unwind their
// sessions.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	views := make([]*View, 0, len(h.views))
	for v := range h.views {
		views = append(views, v)
	}
	h.mu.Unlock()
	for _, v := range views {
		v.Close()
	}
}
