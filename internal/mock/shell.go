// Package mock provides an in-memory stand-in for the rendering surface and
// the hosted shell behind it.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
	"github.com/thoughtspot/android-embed-sdk/internal/envelope"
)

var ErrDestroyed = errors.New("mock: surface destroyed")

// Shell implements bridge.Surface. All posted work and all inbound
// deliveries run in order on one goroutine, the way a webview's UI thread
// would run them.
type Shell struct {
	shellURL  string
	autoReady bool

	mu        sync.Mutex
	queue     []func()
	wake      chan struct{}
	handler   bridge.Handler
	destroyed bool
	current   string
	loads     []string
	scripts   []string
	sent      []envelope.Envelope
	changed   chan struct{}
	observers []func(envelope.Envelope)
}

type ShellOption func(*Shell)

// WithShellURL sets the URL the shell answers on. Loading any other URL
// does not trigger the readiness announcement.
func WithShellURL(url string) ShellOption {
	return func(s *Shell) { s.shellURL = url }
}

// WithoutAutoReady stops the shell from announcing readiness on load; tests
// then drive the handshake with Emit.
func WithoutAutoReady() ShellOption {
	return func(s *Shell) { s.autoReady = false }
}

// NewShell starts a shell whose context goroutine lives until Destroy.
func NewShell(opts ...ShellOption) *Shell {
	s := &Shell{
		shellURL:  bridge.DefaultShellURL,
		autoReady: true,
		wake:      make(chan struct{}, 1),
		changed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.loop()
	return s
}

func (s *Shell) loop() {
	for range s.wake {
		for {
			s.mu.Lock()
			if s.destroyed || len(s.queue) == 0 {
				done := s.destroyed
				s.mu.Unlock()
				if done {
					return
				}
				break
			}
			fn := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			fn()
		}
	}
}

// Post queues fn on the shell's context.
func (s *Shell) Post(fn func()) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.queue = append(s.queue, fn)
	select {
	case s.wake <- struct{}{}:
	default:
	}
	s.mu.Unlock()
	return nil
}

func (s *Shell) Intercept(h bridge.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

func (s *Shell) LoadURL(url string) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.current = url
	s.loads = append(s.loads, url)
	ready := s.autoReady && url == s.shellURL
	s.mu.Unlock()

	if ready {
		s.PageLoad(url)
		return s.EmitEnvelope(envelope.ShellReady{})
	}
	return nil
}

// EvaluateScript records the envelope carried by code, if any, and notifies
// observers. Scripts that do not carry an envelope are recorded but
// otherwise ignored.
func (s *Shell) EvaluateScript(code string, onResult func(string)) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrDestroyed
	}
	s.scripts = append(s.scripts, code)
	var env envelope.Envelope
	if body, ok := envelope.ParseScript(code); ok {
		env = envelope.Decode(body)
		s.sent = append(s.sent, env)
		close(s.changed)
		s.changed = make(chan struct{})
	}
	observers := append(([]func(envelope.Envelope))(nil), s.observers...)
	s.mu.Unlock()

	if env != nil {
		for _, fn := range observers {
			fn(env)
		}
	}
	if onResult != nil {
		onResult("null")
	}
	return nil
}

func (s *Shell) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrDestroyed
	}
	s.destroyed = true
	s.queue = nil
	close(s.wake)
	return nil
}

// OnEnvelope registers fn to observe every envelope the host sends.
func (s *Shell) OnEnvelope(fn func(envelope.Envelope)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Emit delivers raw to the installed handler on the shell's context.
func (s *Shell) Emit(raw string) error {
	return s.Post(func() {
		if h := s.currentHandler(); h != nil {
			h.Message(raw)
		}
	})
}

// EmitEnvelope encodes env and delivers it like Emit.
func (s *Shell) EmitEnvelope(env envelope.Envelope) error {
	raw, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	return s.Emit(raw)
}

// PageLoad delivers a page-load signal on the shell's context.
func (s *Shell) PageLoad(url string) error {
	return s.Post(func() {
		if h := s.currentHandler(); h != nil {
			h.PageLoaded(url)
		}
	})
}

// Flush waits until everything queued before the call has run.
func (s *Shell) Flush(ctx context.Context) error {
	done := make(chan struct{})
	if err := s.Post(func() { close(done) }); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitSent blocks until at least n envelopes have been sent and returns
// them.
func (s *Shell) WaitSent(ctx context.Context, n int) ([]envelope.Envelope, error) {
	for {
		s.mu.Lock()
		if len(s.sent) >= n {
			out := append([]envelope.Envelope(nil), s.sent...)
			s.mu.Unlock()
			return out, nil
		}
		changed := s.changed
		s.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return s.Sent(), ctx.Err()
		}
	}
}

// Sent returns the envelopes received from the host so far.
func (s *Shell) Sent() []envelope.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]envelope.Envelope(nil), s.sent...)
}

// SentOfType filters Sent by envelope kind.
func (s *Shell) SentOfType(t envelope.Type) []envelope.Envelope {
	var out []envelope.Envelope
	for _, env := range s.Sent() {
		if env.Type() == t {
			out = append(out, env)
		}
	}
	return out
}

func (s *Shell) Scripts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.scripts...)
}

func (s *Shell) Loads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.loads...)
}

func (s *Shell) CurrentURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Shell) Destroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

func (s *Shell) currentHandler() bridge.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}
