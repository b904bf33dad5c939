package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thoughtspot/android-embed-sdk/internal/session"
)

var ErrTooManyConnections = errors.New("ws: too many connections")

type client struct {
	conn *websocket.Conn
	b    *Broadcaster
	send chan []byte
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.b.RemoveClient(c)
			return
		}
	}
}

// Broadcaster streams session changes to feed watchers: a snapshot on
// connect and on every snapshot tick, throttled deltas in between.
type Broadcaster struct {
	mu       sync.RWMutex
	clients  map[*client]bool
	maxConns int

	store    *session.Store
	privacy  *session.PrivacyFilter
	logger   *slog.Logger
	throttle time.Duration

	snapshotTicker *time.Ticker
	stop           chan struct{}
	stopOnce       sync.Once

	flushMu        sync.Mutex
	pendingUpdates map[string]*session.SessionState
	pendingRemoved []string
	flushTimer     *time.Timer
}

// NewBroadcaster starts the snapshot loop. maxConns <= 0 means unlimited.
func NewBroadcaster(store *session.Store, throttle, snapshotInterval time.Duration, maxConns int) *Broadcaster {
	b := &Broadcaster{
		clients:        make(map[*client]bool),
		maxConns:       maxConns,
		store:          store,
		privacy:        &session.PrivacyFilter{},
		logger:         slog.Default(),
		throttle:       throttle,
		snapshotTicker: time.NewTicker(snapshotInterval),
		stop:           make(chan struct{}),
		pendingUpdates: make(map[string]*session.SessionState),
	}
	go b.snapshotLoop()
	return b
}

// SetPrivacyFilter must be called before clients connect.
func (b *Broadcaster) SetPrivacyFilter(f *session.PrivacyFilter) {
	if f == nil {
		f = &session.PrivacyFilter{}
	}
	b.privacy = f
}

func (b *Broadcaster) SetLogger(l *slog.Logger) {
	if l != nil {
		b.logger = l
	}
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) (*client, error) {
	c := &client{conn: conn, b: b, send: make(chan []byte, 64)}

	b.mu.Lock()
	if b.maxConns > 0 && len(b.clients) >= b.maxConns {
		b.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	b.clients[c] = true
	b.mu.Unlock()

	go c.writePump()

	if data, err := json.Marshal(b.snapshot()); err == nil {
		select {
		case c.send <- data:
		default:
		}
	}
	return c, nil
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.send)
	}
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Run forwards manager events to watchers until events is closed or the
// broadcaster stops.
func (b *Broadcaster) Run(events <-chan session.Event) {
	for {
		select {
		case <-b.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.State == nil {
				continue
			}
			if ev.Type == session.EventClosed {
				b.QueueRemoval(ev.State.ID)
				continue
			}
			b.QueueUpdate(ev.State)
		}
	}
}

// QueueUpdate coalesces updates per session until the next flush.
func (b *Broadcaster) QueueUpdate(states ...*session.SessionState) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	for _, st := range states {
		b.pendingUpdates[st.ID] = st
	}
	b.scheduleFlush()
}

func (b *Broadcaster) QueueRemoval(ids ...string) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	for _, id := range ids {
		delete(b.pendingUpdates, id)
	}
	b.pendingRemoved = append(b.pendingRemoved, ids...)
	b.scheduleFlush()
}

// scheduleFlush must be called with flushMu held.
func (b *Broadcaster) scheduleFlush() {
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	updates := make([]*session.SessionState, 0, len(b.pendingUpdates))
	for _, st := range b.pendingUpdates {
		updates = append(updates, st)
	}
	removed := b.pendingRemoved
	b.pendingUpdates = make(map[string]*session.SessionState)
	b.pendingRemoved = nil
	b.flushTimer = nil
	b.flushMu.Unlock()

	if len(updates) == 0 && len(removed) == 0 {
		return
	}
	b.broadcast(WSMessage{
		Type: MsgDelta,
		Payload: DeltaPayload{
			Updates: b.privacy.FilterSlice(updates),
			Removed: b.maskIDs(removed),
		},
	})
}

func (b *Broadcaster) maskIDs(ids []string) []string {
	if !b.privacy.MaskSessionIDs {
		return ids
	}
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = b.privacy.Apply(&session.SessionState{ID: id}).ID
	}
	return out
}

func (b *Broadcaster) snapshot() WSMessage {
	return WSMessage{
		Type: MsgSnapshot,
		Payload: SnapshotPayload{
			Sessions: b.privacy.FilterSlice(b.store.GetAll()),
			Ready:    b.store.ReadyCount(),
		},
	}
}

func (b *Broadcaster) snapshotLoop() {
	for {
		select {
		case <-b.stop:
			return
		case <-b.snapshotTicker.C:
			b.broadcast(b.snapshot())
		}
	}
}

func (b *Broadcaster) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error("broadcast marshal failed", "error", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if !b.trySend(c, data) {
			b.logger.Warn("feed client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

// trySend reports false when c's buffer is full. A client removed
// concurrently counts as sent.
func (b *Broadcaster) trySend(c *client, data []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.clients[c] {
		return true
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Stop ends the snapshot loop and disconnects every client.
func (b *Broadcaster) Stop() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.snapshotTicker.Stop()
		b.flushMu.Lock()
		if b.flushTimer != nil {
			b.flushTimer.Stop()
			b.flushTimer = nil
		}
		b.flushMu.Unlock()

		b.mu.Lock()
		for c := range b.clients {
			delete(b.clients, c)
			close(c.send)
		}
		b.mu.Unlock()
	})
}
