package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthTypeValid(t *testing.T) {
	for _, a := range []AuthType{AuthNone, AuthBasic, AuthEmbeddedSSO, AuthSAMLRedirect, AuthOIDCRedirect, AuthTrustedAuthToken, AuthTrustedAuthTokenCookieless} {
		assert.True(t, a.Valid(), a)
	}
	assert.False(t, AuthType("").Valid())
	assert.False(t, AuthType("basic").Valid())

	assert.True(t, AuthTrustedAuthToken.TokenBased())
	assert.True(t, AuthTrustedAuthTokenCookieless.TokenBased())
	assert.False(t, AuthBasic.TokenBased())
}

func TestInitPayload(t *testing.T) {
	cfg := EmbedConfig{
		ThoughtSpotHost: "https://ts.example.com",
		AuthType:        AuthBasic,
		Username:        "analyst",
		Password:        "secret",
		Extra:           map[string]any{"locale": "de-DE", "thoughtSpotHost": "override"},
	}
	payload, err := cfg.initPayload()
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"thoughtSpotHost": "https://ts.example.com",
		"authType":        "Basic",
		"username":        "analyst",
		"password":        "secret",
		"locale":          "de-DE",
		"getTokenFromSDK": true,
	}, payload)
}

func TestStateText(t *testing.T) {
	for _, s := range []State{StateUnattached, StateAwaitingReady, StateReady, StateClosed} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var back State
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, s, back)
	}
	assert.Equal(t, "unknown", State(42).String())

	var s State
	assert.Error(t, s.UnmarshalText([]byte("bogus")))
	assert.True(t, StateClosed.IsTerminal())
	assert.False(t, StateReady.IsTerminal())
}
