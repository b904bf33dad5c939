package ws

import (
	"encoding/json"

	"github.com/thoughtspot/android-embed-sdk/internal/session"
)

// Op identifies a frame exchanged with a host page acting as a rendering
// surface.
type Op string

const (
	// host -> page
	OpLoad    Op = "load"
	OpEval    Op = "eval"
	OpDestroy Op = "destroy"

	// page -> host
	OpMessage Op = "message"
	OpLoaded  Op = "loaded"
	OpResult  Op = "result"
)

// Frame is the single wire shape for surface traffic. Which fields are set
// depends on Op.
type Frame struct {
	Op    Op     `json:"op"`
	ID    uint64 `json:"id,omitempty"`
	URL   string `json:"url,omitempty"`
	Code  string `json:"code,omitempty"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
}

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgDelta    MessageType = "delta"
	MsgError    MessageType = "error"
)

// WSMessage is sent to session feed watchers.
type WSMessage struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload"`
}

type SnapshotPayload struct {
	Sessions []*session.SessionState `json:"sessions"`
	Ready    int                     `json:"ready"`
}

type DeltaPayload struct {
	Updates []*session.SessionState `json:"updates"`
	Removed []string                `json:"removed,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// TriggerRequest is the body of the trigger endpoints.
type TriggerRequest struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type TriggerResponse struct {
	Sent int `json:"sent"`
}
