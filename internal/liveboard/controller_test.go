package liveboard_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
	"github.com/thoughtspot/android-embed-sdk/internal/envelope"
	"github.com/thoughtspot/android-embed-sdk/internal/liveboard"
	"github.com/thoughtspot/android-embed-sdk/internal/mock"
)

func newTestController(t *testing.T, opts ...bridge.Option) *liveboard.Controller {
	t.Helper()
	opts = append([]bridge.Option{bridge.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	c, err := liveboard.New(
		liveboard.ViewConfig{LiveboardID: "lb-42", FullHeight: true, HiddenActions: []string{"share"}},
		bridge.EmbedConfig{ThoughtSpotHost: "https://ts.example.com", AuthType: bridge.AuthTrustedAuthTokenCookieless},
		opts...,
	)
	require.NoError(t, err)
	return c
}

func TestLiveboardHandshake(t *testing.T) {
	inits := make(chan struct{}, 2)
	c := newTestController(t, bridge.WithInitCallback(func() { inits <- struct{}{} }))
	shell := mock.NewShell()
	require.NoError(t, c.Attach(shell))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sent, err := shell.WaitSent(ctx, 2)
	require.NoError(t, err)

	require.Equal(t, envelope.TypeInit, sent[0].Type())
	embed, ok := sent[1].(envelope.Embed)
	require.True(t, ok)
	assert.Equal(t, "Liveboard", embed.EmbedType)
	assert.JSONEq(t, `{"liveboardId":"lb-42","fullHeight":true,"hiddenActions":["share"]}`, string(embed.ViewConfig))

	select {
	case <-inits:
	case <-ctx.Done():
		t.Fatal("init callback not called")
	}
	require.NoError(t, shell.Flush(ctx))
	assert.Len(t, inits, 0)
}

func TestLiveboardEvents(t *testing.T) {
	c := newTestController(t)
	got := make(chan string, 1)
	require.NoError(t, c.On(liveboard.EventError, func(data *string) { got <- *data }))
	assert.Equal(t, []string{"Error"}, c.Listeners())

	shell := mock.NewShell()
	require.NoError(t, c.Attach(shell))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := shell.WaitSent(ctx, 2)
	require.NoError(t, err)

	require.NoError(t, shell.Emit(`{"type":"EMBED_EVENT","eventName":"Error","data":"boom"}`))
	select {
	case data := <-got:
		assert.Equal(t, "boom", data)
	case <-ctx.Done():
		t.Fatal("listener not invoked")
	}

	c.Off(liveboard.EventError)
	assert.Empty(t, c.Listeners())
}

func TestLiveboardTrigger(t *testing.T) {
	c := newTestController(t)
	shell := mock.NewShell()
	require.NoError(t, c.Attach(shell))

	require.NoError(t, c.Trigger(liveboard.HostSearch, map[string]int{"q": 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sent, err := shell.WaitSent(ctx, 3)
	require.NoError(t, err)

	var hostEvents []envelope.Envelope
	for _, env := range sent {
		if env.Type() == envelope.TypeHostEvent {
			hostEvents = append(hostEvents, env)
		}
	}
	require.Len(t, hostEvents, 1)
	wire, err := envelope.Encode(hostEvents[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"HOST_EVENT","eventName":"search","payload":{"q":1}}`, wire)
}

func TestLiveboardRejectsUnknownEvents(t *testing.T) {
	c := newTestController(t)
	assert.ErrorIs(t, c.On(liveboard.EmbedEvent("bogus"), func(*string) {}), liveboard.ErrUnknownEvent)
	assert.ErrorIs(t, c.Trigger(liveboard.HostEvent("bogus"), nil), liveboard.ErrUnknownEvent)
	assert.Empty(t, c.Listeners())
}

func TestViewConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     liveboard.ViewConfig
		wantErr bool
	}{
		{"Minimal", liveboard.ViewConfig{LiveboardID: "x"}, false},
		{"MissingID", liveboard.ViewConfig{}, true},
		{"VisibleAndHidden", liveboard.ViewConfig{LiveboardID: "x", VisibleActions: []string{"a"}, HiddenActions: []string{"b"}}, true},
		{"GoodFilter", liveboard.ViewConfig{LiveboardID: "x", RuntimeFilters: []liveboard.RuntimeFilter{{ColumnName: "region", Operator: "IN", Values: []string{"west"}}}}, false},
		{"BadOperator", liveboard.ViewConfig{LiveboardID: "x", RuntimeFilters: []liveboard.RuntimeFilter{{ColumnName: "region", Operator: "LIKE"}}}, true},
		{"FilterWithoutColumn", liveboard.ViewConfig{LiveboardID: "x", RuntimeFilters: []liveboard.RuntimeFilter{{Operator: "EQ"}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := liveboard.New(liveboard.ViewConfig{}, bridge.EmbedConfig{ThoughtSpotHost: "h", AuthType: bridge.AuthNone})
	assert.ErrorIs(t, err, liveboard.ErrMissingLiveboardID)
}

func TestViewConfigJSON(t *testing.T) {
	data, err := json.Marshal(liveboard.ViewConfig{
		LiveboardID:    "lb",
		RuntimeFilters: []liveboard.RuntimeFilter{{ColumnName: "c", Operator: "EQ", Values: []string{"v"}}},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"liveboardId":"lb","runtimeFilters":[{"columnName":"c","operator":"EQ","values":["v"]}]}`, string(data))
}

func TestEventVocabulary(t *testing.T) {
	assert.True(t, liveboard.EventLiveboardRendered.Valid())
	assert.Equal(t, "PinboardRendered", liveboard.EventLiveboardRendered.String())
	assert.True(t, liveboard.HostUpdateRuntimeFilters.Valid())
	assert.False(t, liveboard.EmbedEvent("").Valid())
	assert.False(t, liveboard.HostEvent("").Valid())
}
