package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var ErrNilEnvelope = errors.New("envelope: nil envelope")

// Encode serializes e to its compact JSON wire form. Unknown envelopes are
// emitted verbatim. Raw payloads are compacted on the way out, so
// Decode(Encode(e)) == e holds for envelopes whose payloads are compact,
// which is what Raw and the New* constructors produce.
func Encode(e Envelope) (string, error) {
	var v any
	switch m := e.(type) {
	case nil:
		return "", ErrNilEnvelope
	case Init:
		v = initWire{Type: TypeInit, Payload: nullIfEmpty(m.Payload)}
	case Embed:
		v = embedWire{Type: TypeEmbed, EmbedType: m.EmbedType, ViewConfig: nullIfEmpty(m.ViewConfig)}
	case RequestAuthToken:
		v = bareWire{Type: TypeRequestAuthToken}
	case AuthTokenResponse:
		v = authTokenWire{Type: TypeAuthTokenResponse, Token: m.Token}
	case HostEvent:
		v = hostEventWire{Type: TypeHostEvent, EventName: m.Name, Payload: nullIfEmpty(m.Payload)}
	case EmbedEvent:
		v = embedEventWire{Type: TypeEmbedEvent, EventName: m.Name, Data: m.Data}
	case ShellReady:
		v = bareWire{Type: TypeShellReady}
	case Unknown:
		return m.Raw, nil
	default:
		return "", fmt.Errorf("envelope: unsupported kind %T", e)
	}

	data, err := marshal(v)
	if err != nil {
		return "", fmt.Errorf("envelope: encode %s: %w", e.Type(), err)
	}
	return string(data), nil
}

// marshal is json.Marshal without HTML escaping, so that opaque payloads
// keep their exact bytes across the wire.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Decode parses a wire message. It never fails: anything that is not a
// well-formed envelope of a known kind comes back as Unknown{Raw: raw}.
// Objects that repeat a top-level key are Unknown too.
func Decode(raw string) Envelope {
	unknown := Unknown{Raw: raw}
	if !gjson.Valid(raw) {
		return unknown
	}
	msg := gjson.Parse(raw)
	if !msg.IsObject() || hasDuplicateKeys(msg) {
		return unknown
	}
	t := msg.Get("type")
	if t.Type != gjson.String {
		return unknown
	}

	switch Type(t.Str) {
	case TypeShellReady:
		return ShellReady{}
	case TypeRequestAuthToken:
		return RequestAuthToken{}
	case TypeInit:
		return Init{Payload: rawField(msg.Get("payload"))}
	case TypeEmbed:
		embedType := msg.Get("embedType")
		if embedType.Type != gjson.String {
			return unknown
		}
		return Embed{EmbedType: embedType.Str, ViewConfig: rawField(msg.Get("viewConfig"))}
	case TypeAuthTokenResponse:
		token := msg.Get("token")
		if token.Type != gjson.String {
			return unknown
		}
		return AuthTokenResponse{Token: token.Str}
	case TypeHostEvent:
		name := msg.Get("eventName")
		if name.Type != gjson.String {
			return unknown
		}
		return HostEvent{Name: name.Str, Payload: rawField(msg.Get("payload"))}
	case TypeEmbedEvent:
		name := msg.Get("eventName")
		if name.Type != gjson.String {
			return unknown
		}
		return EmbedEvent{Name: name.Str, Data: dataField(msg.Get("data"))}
	}
	return unknown
}

// NewInit builds an Init envelope from any JSON-marshalable payload.
func NewInit(payload any) (Init, error) {
	raw, err := Raw(payload)
	if err != nil {
		return Init{}, err
	}
	return Init{Payload: raw}, nil
}

// NewEmbed builds an Embed envelope from any JSON-marshalable view config.
func NewEmbed(embedType string, viewConfig any) (Embed, error) {
	raw, err := Raw(viewConfig)
	if err != nil {
		return Embed{}, err
	}
	return Embed{EmbedType: embedType, ViewConfig: raw}, nil
}

// NewHostEvent builds a HostEvent envelope from any JSON-marshalable payload.
func NewHostEvent(name string, payload any) (HostEvent, error) {
	raw, err := Raw(payload)
	if err != nil {
		return HostEvent{}, err
	}
	return HostEvent{Name: name, Payload: raw}, nil
}

// Raw marshals v to compact JSON. nil and JSON null both map to a nil
// RawMessage so that values survive a round trip through the wire.
func Raw(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	var data []byte
	switch p := v.(type) {
	case json.RawMessage:
		data = p
	case []byte:
		data = p
	default:
		var err error
		data, err = marshal(v)
		if err != nil {
			return nil, fmt.Errorf("envelope: marshal payload: %w", err)
		}
	}
	if len(data) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, fmt.Errorf("envelope: invalid payload json: %w", err)
	}
	if buf.String() == "null" {
		return nil, nil
	}
	return json.RawMessage(buf.Bytes()), nil
}

const (
	scriptPrefix = "window.postMessage("
	scriptSuffix = ", '*');"
)

// Script renders the JavaScript that hands e to the page's message entry
// point.
func Script(e Envelope) (string, error) {
	data, err := Encode(e)
	if err != nil {
		return "", err
	}
	return scriptPrefix + data + scriptSuffix, nil
}

// ParseScript extracts the envelope JSON from a script produced by Script.
func ParseScript(code string) (string, bool) {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, scriptPrefix) || !strings.HasSuffix(code, scriptSuffix) {
		return "", false
	}
	body := code[len(scriptPrefix) : len(code)-len(scriptSuffix)]
	if !gjson.Valid(body) {
		return "", false
	}
	return body, true
}

// hasDuplicateKeys reports whether obj repeats a top-level key. gjson reads
// the first occurrence and the shell's JSON.parse keeps the last.
func hasDuplicateKeys(obj gjson.Result) bool {
	seen := make(map[string]bool)
	dup := false
	obj.ForEach(func(key, _ gjson.Result) bool {
		if seen[key.Str] {
			dup = true
			return false
		}
		seen[key.Str] = true
		return true
	})
	return dup
}

func rawField(r gjson.Result) json.RawMessage {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(r.Raw)); err != nil {
		return json.RawMessage(r.Raw)
	}
	return json.RawMessage(buf.Bytes())
}

// dataField mirrors how the shell's data field has always been read: strings
// pass through, null or missing is absent, anything else is its JSON text.
func dataField(r gjson.Result) *string {
	switch {
	case !r.Exists(), r.Type == gjson.Null:
		return nil
	case r.Type == gjson.String:
		return StringPtr(r.Str)
	default:
		s := string(rawField(r))
		return &s
	}
}

func nullIfEmpty(r json.RawMessage) json.RawMessage {
	if len(r) == 0 {
		return json.RawMessage("null")
	}
	return r
}
