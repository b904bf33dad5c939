package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
)

// AuthType selects how the shell authenticates against the ThoughtSpot
// cluster.
type AuthType string

const (
	AuthNone                       AuthType = "None"
	AuthBasic                      AuthType = "Basic"
	AuthEmbeddedSSO                AuthType = "EmbeddedSSO"
	AuthSAMLRedirect               AuthType = "SSO_SAML"
	AuthOIDCRedirect               AuthType = "SSO_OIDC"
	AuthTrustedAuthToken           AuthType = "AuthServer"
	AuthTrustedAuthTokenCookieless AuthType = "AuthServerCookieless"
)

var authTypes = map[AuthType]bool{
	AuthNone:                       true,
	AuthBasic:                      true,
	AuthEmbeddedSSO:                true,
	AuthSAMLRedirect:               true,
	AuthOIDCRedirect:               true,
	AuthTrustedAuthToken:           true,
	AuthTrustedAuthTokenCookieless: true,
}

func (a AuthType) Valid() bool {
	return authTypes[a]
}

// TokenBased reports whether the shell will ask the host for tokens under
// this auth type.
func (a AuthType) TokenBased() bool {
	return a == AuthTrustedAuthToken || a == AuthTrustedAuthTokenCookieless
}

func (a AuthType) String() string {
	return string(a)
}

var (
	ErrMissingHost     = errors.New("bridge: thoughtSpotHost is required")
	ErrInvalidAuthType = errors.New("bridge: invalid auth type")
	ErrMissingUsername = errors.New("bridge: username is required for Basic auth")
)

// EmbedConfig holds the host connection and auth parameters pushed to the
// shell in the INIT envelope.
type EmbedConfig struct {
	ThoughtSpotHost      string         `json:"thoughtSpotHost" yaml:"thoughtspot_host"`
	AuthType             AuthType       `json:"authType" yaml:"auth_type"`
	Username             string         `json:"username,omitempty" yaml:"username"`
	Password             string         `json:"password,omitempty" yaml:"password"`
	DisableLoginRedirect bool           `json:"disableLoginRedirect,omitempty" yaml:"disable_login_redirect"`
	LoginFailedMessage   string         `json:"loginFailedMessage,omitempty" yaml:"login_failed_message"`
	Customizations       map[string]any `json:"customizations,omitempty" yaml:"customizations"`

	// Extra fields are merged into the INIT payload at the top level. They
	// never override the declared fields above.
	Extra map[string]any `json:"-" yaml:"extra"`
}

// Validate returns the first problem with c.
func (c EmbedConfig) Validate() error {
	if strings.TrimSpace(c.ThoughtSpotHost) == "" {
		return ErrMissingHost
	}
	if !c.AuthType.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAuthType, c.AuthType)
	}
	if c.AuthType == AuthBasic && c.Username == "" {
		return ErrMissingUsername
	}
	return nil
}

// clone deep-copies the maps in c so that a controller's config cannot be
// changed by the caller after construction.
func (c EmbedConfig) clone() (EmbedConfig, error) {
	out := c
	if c.Customizations != nil {
		m, err := deepCopy(c.Customizations)
		if err != nil {
			return EmbedConfig{}, fmt.Errorf("bridge: copy customizations: %w", err)
		}
		out.Customizations = m
	}
	if c.Extra != nil {
		m, err := deepCopy(c.Extra)
		if err != nil {
			return EmbedConfig{}, fmt.Errorf("bridge: copy extra fields: %w", err)
		}
		out.Extra = m
	}
	return out, nil
}

// initPayload renders the INIT payload: the config fields plus the two
// fields the shell needs to route token requests back to the host.
func (c EmbedConfig) initPayload() (map[string]any, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	payload := make(map[string]any, len(c.Extra)+8)
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	for k, v := range c.Extra {
		if _, ok := payload[k]; !ok {
			payload[k] = v
		}
	}
	payload["getTokenFromSDK"] = true
	payload["authType"] = c.AuthType.String()
	return payload, nil
}

func deepCopy(m map[string]any) (map[string]any, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(m))
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// copyMap is a shallow copy used for escape-hatch envelopes.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}
