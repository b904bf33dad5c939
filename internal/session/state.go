package session

import (
	"time"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
)

// SessionState is the observable record of one embedded shell session.
type SessionState struct {
	ID          string       `json:"id"`
	Remote      string       `json:"remote"`
	EmbedType   string       `json:"embedType"`
	State       bridge.State `json:"state"`
	ConnectedAt time.Time    `json:"connectedAt"`
	ReadyAt     *time.Time   `json:"readyAt,omitempty"`
	ClosedAt    *time.Time   `json:"closedAt,omitempty"`

	EventCount    int       `json:"eventCount"`
	LastEvent     string    `json:"lastEvent,omitempty"`
	LastEventData string    `json:"lastEventData,omitempty"`
	LastEventAt   time.Time `json:"lastEventAt,omitempty"`
	ErrorCount    int       `json:"errorCount"`
	LastError     string    `json:"lastError,omitempty"`
	TriggerCount  int       `json:"triggerCount"`
}

// Clone returns a deep copy, duplicating pointer fields so the copy can be
// mutated independently of the original.
func (s *SessionState) Clone() *SessionState {
	c := *s
	if s.ReadyAt != nil {
		t := *s.ReadyAt
		c.ReadyAt = &t
	}
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		c.ClosedAt = &t
	}
	return &c
}

func (s *SessionState) IsReady() bool {
	return s.State == bridge.StateReady
}

func (s *SessionState) IsTerminal() bool {
	return s.State.IsTerminal()
}
