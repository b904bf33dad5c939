// Package envelope defines the typed messages exchanged between the host and
// the embedded shell, and the JSON codec that carries them across the bridge.
package envelope

import (
	"encoding/json"
)

type Type string

const (
	TypeInit              Type = "INIT"
	TypeEmbed             Type = "EMBED"
	TypeRequestAuthToken  Type = "REQUEST_AUTH_TOKEN"
	TypeAuthTokenResponse Type = "AUTH_TOKEN_RESPONSE"
	TypeHostEvent         Type = "HOST_EVENT"
	TypeEmbedEvent        Type = "EMBED_EVENT"
	TypeShellReady        Type = "INIT_VERCEL_SHELL"

	// TypeUnknown never appears on the wire; it tags envelopes that could
	// not be decoded.
	TypeUnknown Type = ""
)

// Envelope is one discrete message crossing the bridge. The set of
// implementations is closed.
type Envelope interface {
	Type() Type
	envelope()
}

// Init carries the host connection parameters to the shell.
type Init struct {
	Payload json.RawMessage
}

// Embed tells the shell which feature to render and how.
type Embed struct {
	EmbedType  string
	ViewConfig json.RawMessage
}

// RequestAuthToken is sent by the shell when it needs a fresh token.
type RequestAuthToken struct{}

// AuthTokenResponse answers a RequestAuthToken. An empty token means the
// host could not produce one.
type AuthTokenResponse struct {
	Token string
}

// HostEvent is an instruction from native code into the shell.
type HostEvent struct {
	Name    string
	Payload json.RawMessage
}

// EmbedEvent is a notification from the shell. Data is nil when the shell
// sent null or omitted it.
type EmbedEvent struct {
	Name string
	Data *string
}

// ShellReady is the shell's explicit announcement that its scripts are
// running and it can accept INIT.
type ShellReady struct{}

// Unknown holds input that did not decode to any other kind.
type Unknown struct {
	Raw string
}

func (Init) Type() Type              { return TypeInit }
func (Embed) Type() Type             { return TypeEmbed }
func (RequestAuthToken) Type() Type  { return TypeRequestAuthToken }
func (AuthTokenResponse) Type() Type { return TypeAuthTokenResponse }
func (HostEvent) Type() Type         { return TypeHostEvent }
func (EmbedEvent) Type() Type        { return TypeEmbedEvent }
func (ShellReady) Type() Type        { return TypeShellReady }
func (Unknown) Type() Type           { return TypeUnknown }

func (Init) envelope()              {}
func (Embed) envelope()             {}
func (RequestAuthToken) envelope()  {}
func (AuthTokenResponse) envelope() {}
func (HostEvent) envelope()         {}
func (EmbedEvent) envelope()        {}
func (ShellReady) envelope()        {}
func (Unknown) envelope()           {}

// Wire shapes. Field order matches what the shell expects to see in logs.

type initWire struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type embedWire struct {
	Type       Type            `json:"type"`
	EmbedType  string          `json:"embedType"`
	ViewConfig json.RawMessage `json:"viewConfig"`
}

type bareWire struct {
	Type Type `json:"type"`
}

type authTokenWire struct {
	Type  Type   `json:"type"`
	Token string `json:"token"`
}

type hostEventWire struct {
	Type      Type            `json:"type"`
	EventName string          `json:"eventName"`
	Payload   json.RawMessage `json:"payload"`
}

type embedEventWire struct {
	Type      Type    `json:"type"`
	EventName string  `json:"eventName"`
	Data      *string `json:"data"`
}

// StringPtr is a convenience for building EmbedEvent values.
func StringPtr(s string) *string {
	return &s
}
