package session

import (
	"errors"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
	"github.com/thoughtspot/android-embed-sdk/internal/liveboard"
)

var ErrSessionNotFound = errors.New("session: not found")

// maxEventData bounds how much of an embed event's data is kept for the
// status API.
const maxEventData = 256

// Factory builds the controller for a new session. The manager passes its
// own bridge options, which the factory must apply.
type Factory func(id string, opts ...bridge.Option) (*liveboard.Controller, error)

// Manager owns one Liveboard controller per connected surface and mirrors
// each controller's progress into a Store.
type Manager struct {
	store          *Store
	factory        Factory
	logger         *slog.Logger
	readyWarnAfter time.Duration
	now            func() time.Time

	mu          sync.Mutex
	controllers map[string]*liveboard.Controller
	events      chan<- Event
}

func NewManager(store *Store, factory Factory, logger *slog.Logger, readyWarnAfter time.Duration) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:          store,
		factory:        factory,
		logger:         logger,
		readyWarnAfter: readyWarnAfter,
		now:            time.Now,
		controllers:    make(map[string]*liveboard.Controller),
	}
}

// SetEvents configures a channel that receives session lifecycle events.
// Sends never block; a full channel drops events.
func (m *Manager) SetEvents(ch chan<- Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = ch
}

func (m *Manager) Store() *Store {
	return m.store
}

// Open starts a session on surface and returns its id.
func (m *Manager) Open(surface bridge.Surface, remote string) (string, error) {
	id := uuid.NewString()
	m.store.Update(&SessionState{
		ID:          id,
		Remote:      remote,
		EmbedType:   liveboard.EmbedType,
		State:       bridge.StateUnattached,
		ConnectedAt: m.now(),
	})

	ctrl, err := m.factory(id, bridge.WithStateHook(func(_, to bridge.State) {
		m.onState(id, to)
	}))
	if err != nil {
		m.store.Remove(id)
		return "", err
	}
	for _, ev := range liveboard.EmbedEvents() {
		if err := ctrl.On(ev, func(data *string) { m.onEvent(id, ev, data) }); err != nil {
			m.store.Remove(id)
			return "", err
		}
	}

	m.mu.Lock()
	m.controllers[id] = ctrl
	m.mu.Unlock()
	m.emit(EventNew, id)

	if err := ctrl.Attach(surface); err != nil {
		_ = m.Close(id)
		return "", err
	}
	if m.readyWarnAfter > 0 {
		time.AfterFunc(m.readyWarnAfter, func() {
			if ctrl.State() == bridge.StateAwaitingReady {
				m.logger.Warn("shell has not announced readiness", "session", id, "after", m.readyWarnAfter)
			}
		})
	}
	m.logger.Info("session opened", "session", id, "remote", remote)
	return id, nil
}

// Trigger sends a host event into one session.
func (m *Manager) Trigger(id string, event liveboard.HostEvent, payload any) error {
	ctrl, ok := m.controller(id)
	if !ok {
		return ErrSessionNotFound
	}
	if err := ctrl.Trigger(event, payload); err != nil {
		return err
	}
	m.store.Modify(id, func(st *SessionState) { st.TriggerCount++ })
	return nil
}

// TriggerAll sends a host event into every ready session and returns how
// many accepted it.
func (m *Manager) TriggerAll(event liveboard.HostEvent, payload any) (int, error) {
	if !event.Valid() {
		return 0, liveboard.ErrUnknownEvent
	}
	sent := 0
	for _, st := range m.store.GetAll() {
		if !st.IsReady() {
			continue
		}
		if err := m.Trigger(st.ID, event, payload); err != nil {
			m.logger.Warn("trigger failed", "session", st.ID, "event", event, "error", err)
			continue
		}
		sent++
	}
	return sent, nil
}

// Close tears down a session's controller and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	ctrl, ok := m.controllers[id]
	delete(m.controllers, id)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	err := ctrl.Teardown()
	m.store.Remove(id)
	m.logger.Info("session closed", "session", id)
	return err
}

// CloseAll tears down every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.controllers))
	for id := range m.controllers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Close(id); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.logger.Warn("close session failed", "session", id, "error", err)
		}
	}
}

func (m *Manager) controller(id string) (*liveboard.Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ctrl, ok := m.controllers[id]
	return ctrl, ok
}

func (m *Manager) onState(id string, to bridge.State) {
	now := m.now()
	_, ok := m.store.Modify(id, func(st *SessionState) {
		st.State = to
		switch to {
		case bridge.StateReady:
			st.ReadyAt = &now
		case bridge.StateClosed:
			st.ClosedAt = &now
		}
	})
	if !ok {
		return
	}
	if to == bridge.StateClosed {
		m.emit(EventClosed, id)
		return
	}
	m.emit(EventUpdate, id)
}

func (m *Manager) onEvent(id string, ev liveboard.EmbedEvent, data *string) {
	text := ""
	if data != nil {
		text = truncate(*data, maxEventData)
	}
	now := m.now()
	_, ok := m.store.Modify(id, func(st *SessionState) {
		st.EventCount++
		st.LastEvent = ev.String()
		st.LastEventData = text
		st.LastEventAt = now
		if ev == liveboard.EventError {
			st.ErrorCount++
			st.LastError = text
		}
	})
	if !ok {
		return
	}
	m.logger.Debug("embed event", "session", id, "event", ev)
	m.emit(EventUpdate, id)
}

func (m *Manager) emit(t EventType, id string) {
	m.mu.Lock()
	ch := m.events
	m.mu.Unlock()
	if ch == nil {
		return
	}
	st, ok := m.store.Get(id)
	if !ok {
		return
	}
	select {
	case ch <- Event{Type: t, State: st, ActiveCount: m.store.ReadyCount()}:
	default:
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
