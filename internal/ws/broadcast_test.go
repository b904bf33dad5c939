package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
	"github.com/thoughtspot/android-embed-sdk/internal/session"
)

// dialTestWS starts a server that upgrades one connection and returns both
// ends. The caller closes the server; the conns close with it.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil, nil
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    MessageType     `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	var payload any
	switch msg.Type {
	case MsgSnapshot:
		var p SnapshotPayload
		_ = json.Unmarshal(msg.Payload, &p)
		payload = p
	case MsgDelta:
		var p DeltaPayload
		_ = json.Unmarshal(msg.Payload, &p)
		payload = p
	}
	return WSMessage{Type: msg.Type, Payload: payload}
}

func TestAddClientMaxConnections(t *testing.T) {
	const maxConns = 2
	b := NewBroadcaster(session.NewStore(), 10*time.Millisecond, time.Hour, maxConns)
	defer b.Stop()

	var clients []*client
	for i := 0; i < maxConns; i++ {
		srv, conn, _ := dialTestWS(t)
		defer srv.Close()
		c, err := b.AddClient(conn)
		if err != nil {
			t.Fatalf("AddClient[%d]: %v", i, err)
		}
		clients = append(clients, c)
	}

	srv, conn, _ := dialTestWS(t)
	defer srv.Close()
	if _, err := b.AddClient(conn); !errors.Is(err, ErrTooManyConnections) {
		t.Fatalf("expected ErrTooManyConnections, got %v", err)
	}
	if got := b.ClientCount(); got != maxConns {
		t.Fatalf("ClientCount() = %d after rejection, want %d", got, maxConns)
	}

	b.RemoveClient(clients[0])
	b.RemoveClient(clients[0])

	srv2, conn2, _ := dialTestWS(t)
	defer srv2.Close()
	if _, err := b.AddClient(conn2); err != nil {
		t.Fatalf("AddClient after removal: %v", err)
	}
}

func TestAddClientUnlimited(t *testing.T) {
	b := NewBroadcaster(session.NewStore(), 10*time.Millisecond, time.Hour, 0)
	defer b.Stop()

	for i := 0; i < 8; i++ {
		srv, conn, _ := dialTestWS(t)
		defer srv.Close()
		if _, err := b.AddClient(conn); err != nil {
			t.Fatalf("AddClient[%d]: %v", i, err)
		}
	}
	if got := b.ClientCount(); got != 8 {
		t.Fatalf("ClientCount() = %d, want 8", got)
	}
}

func TestWritePumpRemovesClientOnError(t *testing.T) {
	srv, serverConn, _ := dialTestWS(t)
	defer srv.Close()

	b := NewBroadcaster(session.NewStore(), time.Hour, time.Hour, 0)
	defer b.Stop()

	c := &client{conn: serverConn, b: b, send: make(chan []byte, 4)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	serverConn.Close()
	c.send <- []byte(`{"type":"delta"}`)
	go c.writePump()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.ClientCount() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client not removed after write error; ClientCount = %d", b.ClientCount())
}

func TestSnapshotOnConnect(t *testing.T) {
	store := session.NewStore()
	store.Update(&session.SessionState{ID: "s1", State: bridge.StateReady})
	store.Update(&session.SessionState{ID: "s2", State: bridge.StateAwaitingReady})

	b := NewBroadcaster(store, time.Hour, time.Hour, 0)
	defer b.Stop()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	if _, err := b.AddClient(serverConn); err != nil {
		t.Fatal(err)
	}

	msg := readMessage(t, clientConn)
	if msg.Type != MsgSnapshot {
		t.Fatalf("first message type = %s, want snapshot", msg.Type)
	}
	snap := msg.Payload.(SnapshotPayload)
	if len(snap.Sessions) != 2 || snap.Ready != 1 {
		t.Errorf("snapshot = %d sessions, %d ready; want 2, 1", len(snap.Sessions), snap.Ready)
	}
}

func TestDeltaCoalescesUpdates(t *testing.T) {
	b := NewBroadcaster(session.NewStore(), 20*time.Millisecond, time.Hour, 0)
	defer b.Stop()
	b.SetPrivacyFilter(&session.PrivacyFilter{MaskRemoteAddrs: true})

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	if _, err := b.AddClient(serverConn); err != nil {
		t.Fatal(err)
	}
	readMessage(t, clientConn)

	b.QueueUpdate(&session.SessionState{ID: "a", Remote: "10.1.2.3:9000", EventCount: 1})
	b.QueueUpdate(&session.SessionState{ID: "a", Remote: "10.1.2.3:9000", EventCount: 2})
	b.QueueUpdate(&session.SessionState{ID: "b"})
	b.QueueRemoval("b")

	msg := readMessage(t, clientConn)
	if msg.Type != MsgDelta {
		t.Fatalf("message type = %s, want delta", msg.Type)
	}
	delta := msg.Payload.(DeltaPayload)
	if len(delta.Updates) != 1 || delta.Updates[0].ID != "a" || delta.Updates[0].EventCount != 2 {
		t.Fatalf("updates = %+v, want only the latest state of a", delta.Updates)
	}
	if strings.Contains(delta.Updates[0].Remote, "10.1.2.3") {
		t.Errorf("remote not masked: %s", delta.Updates[0].Remote)
	}
	if len(delta.Removed) != 1 || delta.Removed[0] != "b" {
		t.Errorf("removed = %v, want [b]", delta.Removed)
	}
}

func TestRunForwardsManagerEvents(t *testing.T) {
	b := NewBroadcaster(session.NewStore(), 10*time.Millisecond, time.Hour, 0)
	defer b.Stop()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	if _, err := b.AddClient(serverConn); err != nil {
		t.Fatal(err)
	}
	readMessage(t, clientConn)

	events := make(chan session.Event, 2)
	go b.Run(events)
	events <- session.Event{Type: session.EventClosed, State: &session.SessionState{ID: "gone"}}

	delta := readMessage(t, clientConn).Payload.(DeltaPayload)
	if len(delta.Removed) != 1 || delta.Removed[0] != "gone" {
		t.Errorf("removed = %v, want [gone]", delta.Removed)
	}
	close(events)
}
