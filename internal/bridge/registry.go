package bridge

import (
	"errors"
	"slices"
	"sync"
)

var ErrEmptyEventName = errors.New("bridge: empty event name")

// Listener receives the data of an embed event. data is nil when the shell
// sent no data.
type Listener func(data *string)

// Registry maps event names to a single active listener.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string]Listener
	gate      func() bool
}

func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[string]Listener),
	}
}

// SetGate makes Dispatch skip listeners while open reports false. open is
// consulted right before each invocation. It must be set before the
// registry is shared.
func (r *Registry) SetGate(open func() bool) {
	r.gate = open
}

// Register installs fn for name, replacing any previous listener.
func (r *Registry) Register(name string, fn Listener) error {
	if name == "" {
		return ErrEmptyEventName
	}
	if fn == nil {
		r.Unregister(name)
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[name] = fn
	return nil
}

// Unregister removes the listener for name. Missing names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.listeners, name)
}

// Dispatch invokes the listener for name, if any, and reports whether one
// ran. The listener is called without the lock held, so it may register or
// unregister names itself.
func (r *Registry) Dispatch(name string, data *string) bool {
	r.mu.RLock()
	fn, ok := r.listeners[name]
	gate := r.gate
	r.mu.RUnlock()
	if !ok || (gate != nil && !gate()) {
		return false
	}
	fn(data)
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

// Names returns the registered event names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.listeners))
	for name := range r.listeners {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Clear drops every listener.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.listeners)
}
