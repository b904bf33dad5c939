package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	maxFrameSize = 1 << 20
)

var ErrViewClosed = errors.New("ws: view closed")

// View is a bridge.Surface backed by a host page connected over WebSocket.
// A single pump goroutine runs every posted function and owns all data
// writes to the connection, so it is the surface's execution context.
type View struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	handler bridge.Handler
	pending map[uint64]func(string)
	nextID  uint64

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewView starts the pump for conn. The caller runs ReadLoop.
func NewView(conn *websocket.Conn, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	v := &View{
		conn:    conn,
		logger:  logger,
		pending: make(map[uint64]func(string)),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go v.pump()
	return v
}

// Done is closed once the view stops accepting work.
func (v *View) Done() <-chan struct{} {
	return v.done
}

func (v *View) Post(fn func()) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed() {
		return ErrViewClosed
	}
	v.queue = append(v.queue, fn)
	select {
	case v.wake <- struct{}{}:
	default:
	}
	return nil
}

func (v *View) Intercept(h bridge.Handler) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handler = h
}

func (v *View) LoadURL(url string) error {
	return v.write(Frame{Op: OpLoad, URL: url})
}

// EvaluateScript asks the page to run code in the shell frame. onResult, if
// set, later receives the JSON text of the script's value on the view's
// context.
func (v *View) EvaluateScript(code string, onResult func(string)) error {
	f := Frame{Op: OpEval, Code: code}
	if onResult != nil {
		v.mu.Lock()
		v.nextID++
		f.ID = v.nextID
		v.pending[f.ID] = onResult
		v.mu.Unlock()
	}
	if err := v.write(f); err != nil {
		if f.ID != 0 {
			v.mu.Lock()
			delete(v.pending, f.ID)
			v.mu.Unlock()
		}
		return err
	}
	return nil
}

// Destroy tells the page to drop the shell frame and closes the connection.
func (v *View) Destroy() error {
	err := v.write(Frame{Op: OpDestroy})
	_ = v.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "destroyed"),
		time.Now().Add(writeTimeout))
	v.Close()
	return err
}

// Close stops the pump and closes the connection. Queued work is dropped.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		v.mu.Lock()
		close(v.done)
		v.queue = nil
		v.pending = make(map[uint64]func(string))
		v.mu.Unlock()
		v.conn.Close()
	})
}

// ReadLoop reads page frames until the connection fails and delivers them
// to the installed handler on the view's context. It closes the view
// before returning.
func (v *View) ReadLoop() error {
	defer v.Close()

	v.conn.SetReadLimit(maxFrameSize)
	v.conn.SetPongHandler(func(string) error {
		return v.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	_ = v.conn.SetReadDeadline(time.Now().Add(pongTimeout))

	for {
		_, data, err := v.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return err
			}
			return nil
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			v.logger.Debug("ignoring malformed frame", "error", err)
			continue
		}
		if err := v.dispatch(f); err != nil {
			return nil
		}
	}
}

func (v *View) dispatch(f Frame) error {
	switch f.Op {
	case OpMessage:
		raw := f.Data
		return v.Post(func() {
			if h := v.currentHandler(); h != nil {
				h.Message(raw)
			}
		})
	case OpLoaded:
		url := f.URL
		return v.Post(func() {
			if h := v.currentHandler(); h != nil {
				h.PageLoaded(url)
			}
		})
	case OpResult:
		v.mu.Lock()
		cb, ok := v.pending[f.ID]
		delete(v.pending, f.ID)
		v.mu.Unlock()
		if !ok {
			return nil
		}
		value := f.Value
		return v.Post(func() { cb(value) })
	default:
		v.logger.Debug("ignoring frame", "op", f.Op)
		return nil
	}
}

func (v *View) pump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-v.done:
			return
		case <-ticker.C:
			_ = v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := v.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				v.Close()
				return
			}
		case <-v.wake:
			v.drain()
		}
	}
}

func (v *View) drain() {
	for {
		v.mu.Lock()
		if v.closed() || len(v.queue) == 0 {
			v.mu.Unlock()
			return
		}
		fn := v.queue[0]
		v.queue = v.queue[1:]
		v.mu.Unlock()
		fn()
	}
}

func (v *View) write(f Frame) error {
	if v.closed() {
		return ErrViewClosed
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_ = v.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := v.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		v.Close()
		return err
	}
	return nil
}

func (v *View) closed() bool {
	select {
	case <-v.done:
		return true
	default:
		return false
	}
}

func (v *View) currentHandler() bridge.Handler {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.handler
}
