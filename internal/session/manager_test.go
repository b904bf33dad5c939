package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
	"github.com/thoughtspot/android-embed-sdk/internal/envelope"
	"github.com/thoughtspot/android-embed-sdk/internal/liveboard"
	"github.com/thoughtspot/android-embed-sdk/internal/mock"
	"github.com/thoughtspot/android-embed-sdk/internal/session"
)

func testFactory(id string, opts ...bridge.Option) (*liveboard.Controller, error) {
	cfg := bridge.EmbedConfig{ThoughtSpotHost: "https://ts.example.com", AuthType: bridge.AuthNone}
	return liveboard.New(liveboard.ViewConfig{LiveboardID: "lb-" + id[:4]}, cfg, opts...)
}

func newManager() *session.Manager {
	return session.NewManager(session.NewStore(), testFactory, nil, 0)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestManagerOpenReachesReady(t *testing.T) {
	m := newManager()
	shell := mock.NewShell()
	defer shell.Destroy()

	id, err := m.Open(shell, "10.0.0.1:5000")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	waitFor(t, func() bool {
		st, ok := m.Store().Get(id)
		return ok && st.IsReady()
	})
	st, _ := m.Store().Get(id)
	assert.Equal(t, "10.0.0.1:5000", st.Remote)
	assert.Equal(t, liveboard.EmbedType, st.EmbedType)
	assert.NotNil(t, st.ReadyAt)
	assert.Equal(t, 1, m.Store().ReadyCount())
}

func TestManagerRecordsEvents(t *testing.T) {
	m := newManager()
	shell := mock.NewShell()
	defer shell.Destroy()

	id, err := m.Open(shell, "mock")
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = shell.WaitSent(ctx, 2)
	require.NoError(t, err)

	long := strings.Repeat("x", 1000)
	require.NoError(t, shell.EmitEnvelope(envelope.EmbedEvent{Name: "load", Data: envelope.StringPtr("{}")}))
	require.NoError(t, shell.EmitEnvelope(envelope.EmbedEvent{Name: "Error", Data: envelope.StringPtr(long)}))
	require.NoError(t, shell.EmitEnvelope(envelope.EmbedEvent{Name: "notAnEvent"}))
	require.NoError(t, shell.Flush(ctx))

	st, ok := m.Store().Get(id)
	require.True(t, ok)
	assert.Equal(t, 2, st.EventCount)
	assert.Equal(t, "Error", st.LastEvent)
	assert.Equal(t, 1, st.ErrorCount)
	assert.Len(t, st.LastError, 256)

	// 255 ASCII bytes then a three-byte rune straddling the limit.
	wide := strings.Repeat("x", 255) + "€€"
	require.NoError(t, shell.EmitEnvelope(envelope.EmbedEvent{Name: "Error", Data: envelope.StringPtr(wide)}))
	require.NoError(t, shell.Flush(ctx))
	st, ok = m.Store().Get(id)
	require.True(t, ok)
	assert.Equal(t, strings.Repeat("x", 255), st.LastError)
	assert.True(t, utf8.ValidString(st.LastEventData))
}

func TestManagerTrigger(t *testing.T) {
	m := newManager()
	shell := mock.NewShell()
	defer shell.Destroy()

	id, err := m.Open(shell, "mock")
	require.NoError(t, err)
	waitFor(t, func() bool { st, _ := m.Store().Get(id); return st != nil && st.IsReady() })

	require.NoError(t, m.Trigger(id, liveboard.HostReload, nil))
	assert.ErrorIs(t, m.Trigger(id, liveboard.HostEvent("bogus"), nil), liveboard.ErrUnknownEvent)
	assert.ErrorIs(t, m.Trigger("missing", liveboard.HostReload, nil), session.ErrSessionNotFound)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = shell.WaitSent(ctx, 3)
	require.NoError(t, err)
	host := shell.SentOfType(envelope.TypeHostEvent)
	require.Len(t, host, 1)
	assert.Equal(t, "reload", host[0].(envelope.HostEvent).Name)

	st, _ := m.Store().Get(id)
	assert.Equal(t, 1, st.TriggerCount)
}

func TestManagerTriggerAllSkipsUnready(t *testing.T) {
	m := newManager()
	ready := mock.NewShell()
	defer ready.Destroy()
	stalled := mock.NewShell(mock.WithoutAutoReady())
	defer stalled.Destroy()

	readyID, err := m.Open(ready, "a")
	require.NoError(t, err)
	_, err = m.Open(stalled, "b")
	require.NoError(t, err)
	waitFor(t, func() bool { st, _ := m.Store().Get(readyID); return st != nil && st.IsReady() })

	n, err := m.TriggerAll(liveboard.HostSearch, map[string]any{"searchQuery": "revenue"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = m.TriggerAll(liveboard.HostEvent("bogus"), nil)
	assert.ErrorIs(t, err, liveboard.ErrUnknownEvent)
}

func TestManagerClose(t *testing.T) {
	m := newManager()
	events := make(chan session.Event, 32)
	m.SetEvents(events)

	shell := mock.NewShell()
	id, err := m.Open(shell, "mock")
	require.NoError(t, err)

	require.NoError(t, m.Close(id))
	_, ok := m.Store().Get(id)
	assert.False(t, ok)
	assert.ErrorIs(t, m.Close(id), session.ErrSessionNotFound)
	waitFor(t, shell.Destroyed)

	var sawNew, sawClosed bool
	for len(events) > 0 {
		ev := <-events
		switch ev.Type {
		case session.EventNew:
			sawNew = true
		case session.EventClosed:
			sawClosed = true
			assert.Equal(t, bridge.StateClosed, ev.State.State)
		}
	}
	assert.True(t, sawNew)
	assert.True(t, sawClosed)
}

func TestManagerCloseAll(t *testing.T) {
	m := newManager()
	shells := []*mock.Shell{mock.NewShell(), mock.NewShell()}
	for _, s := range shells {
		_, err := m.Open(s, "mock")
		require.NoError(t, err)
	}
	m.CloseAll()
	assert.Equal(t, 0, m.Store().Len())
	for _, s := range shells {
		waitFor(t, s.Destroyed)
	}
}

func TestManagerFactoryError(t *testing.T) {
	boom := errors.New("boom")
	m := session.NewManager(session.NewStore(), func(string, ...bridge.Option) (*liveboard.Controller, error) {
		return nil, boom
	}, nil, 0)

	shell := mock.NewShell()
	defer shell.Destroy()
	_, err := m.Open(shell, "mock")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, m.Store().Len())
}

func TestManagerAttachToDestroyedSurface(t *testing.T) {
	m := newManager()
	shell := mock.NewShell()
	require.NoError(t, shell.Destroy())

	_, err := m.Open(shell, "mock")
	assert.Error(t, err)
	assert.Equal(t, 0, m.Store().Len())
}
