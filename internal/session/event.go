package session

// EventType classifies session lifecycle events.
type EventType int

const (
	EventNew    EventType = iota // surface connected, controller attached
	EventUpdate                  // handshake state changed or embed event seen
	EventClosed                  // controller torn down
)

// Event carries a session snapshot to observers.
type Event struct {
	Type        EventType
	State       *SessionState // snapshot (safe to retain)
	ActiveCount int           // ready sessions at event time
}
