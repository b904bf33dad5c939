package bridge

import (
	"fmt"
)

// State is the handshake state of a controller.
type State int

const (
	StateUnattached State = iota
	StateAwaitingReady
	StateReady
	StateClosed
)

var stateNames = map[State]string{
	StateUnattached:    "unattached",
	StateAwaitingReady: "awaiting_ready",
	StateReady:         "ready",
	StateClosed:        "closed",
}

var stateFromName = map[string]State{
	"unattached":     StateUnattached,
	"awaiting_ready": StateAwaitingReady,
	"ready":          StateReady,
	"closed":         StateClosed,
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	v, ok := stateFromName[string(text)]
	if !ok {
		return fmt.Errorf("bridge: unknown state %q", text)
	}
	*s = v
	return nil
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateClosed
}
