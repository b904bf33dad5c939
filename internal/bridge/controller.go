// Package bridge drives the message channel between native host code and an
// embedded ThoughtSpot shell: the readiness handshake, typed envelope
// traffic, embed event listeners and host-mediated auth tokens.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/thoughtspot/android-embed-sdk/internal/envelope"
)

// DefaultShellURL is the entry point of the hosted embed shell.
const DefaultShellURL = "https://mobile-embed-shell.vercel.app"

const blankURL = "about:blank"

var (
	ErrNotAttached     = errors.New("bridge: controller is not attached to a surface")
	ErrAlreadyAttached = errors.New("bridge: controller is already attached")
	ErrClosed          = errors.New("bridge: controller is closed")
	ErrNilSurface      = errors.New("bridge: nil surface")
	ErrInvalidEnvelope = errors.New("bridge: envelope needs a non-empty string type")
	ErrMissingEmbed    = errors.New("bridge: embed type is required")
)

// View describes the feature the shell should render. Config is serialized
// verbatim into the EMBED envelope.
type View struct {
	EmbedType string
	Config    any
}

// Option configures a Controller.
type Option func(*Controller)

// WithTokenProvider sets the source of auth tokens. Without one, token
// requests from the shell go unanswered.
func WithTokenProvider(p TokenProvider) Option {
	return func(c *Controller) { c.tokens.provider = p }
}

// WithInitCallback sets a function called once after INIT and EMBED have
// been sent.
func WithInitCallback(fn func()) Option {
	return func(c *Controller) { c.onInit = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithShellURL(url string) Option {
	return func(c *Controller) {
		if url != "" {
			c.shellURL = url
		}
	}
}

// WithStateHook registers an observer for handshake transitions. It is
// called without internal locks held.
func WithStateHook(fn func(from, to State)) Option {
	return func(c *Controller) { c.stateHook = fn }
}

func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) {
		if t != nil {
			c.tokens.tracer = t
		}
	}
}

// Controller is the per-embed entry point. It owns its listener registry and
// the surface it is attached to.
type Controller struct {
	cfg       EmbedConfig
	embedType string
	initEnv   envelope.Init
	embedEnv  envelope.Embed
	shellURL  string
	logger    *slog.Logger
	registry  *Registry
	tokens    *tokenMediator
	onInit    func()
	stateHook func(from, to State)

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	state     State
	surface   Surface
	pageLoads int
	initOnce  sync.Once
}

// New validates cfg, snapshots it together with the view config, and
// returns an unattached controller.
func New(cfg EmbedConfig, view View, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(view.EmbedType) == "" {
		return nil, ErrMissingEmbed
	}
	owned, err := cfg.clone()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:       owned,
		embedType: view.EmbedType,
		shellURL:  DefaultShellURL,
		logger:    slog.Default(),
		registry:  NewRegistry(),
		tokens: &tokenMediator{
			tracer: otel.Tracer("github.com/thoughtspot/android-embed-sdk/internal/bridge"),
		},
	}
	// Teardown may land between Message's state check and the listener.
	c.registry.SetGate(func() bool { return c.State() != StateClosed })
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("embed_type", c.embedType)
	c.tokens.logger = c.logger

	payload, err := owned.initPayload()
	if err != nil {
		return nil, fmt.Errorf("bridge: build init payload: %w", err)
	}
	if c.initEnv, err = envelope.NewInit(payload); err != nil {
		return nil, err
	}
	if c.embedEnv, err = envelope.NewEmbed(view.EmbedType, view.Config); err != nil {
		return nil, fmt.Errorf("bridge: serialize view config: %w", err)
	}

	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Config returns a copy of the controller's embed config.
func (c *Controller) Config() EmbedConfig {
	cfg, _ := c.cfg.clone()
	return cfg
}

func (c *Controller) EmbedType() string {
	return c.embedType
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PageLoads counts page-load signals seen from the surface.
func (c *Controller) PageLoads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageLoads
}

// Listeners returns the event names with a registered listener.
func (c *Controller) Listeners() []string {
	return c.registry.Names()
}

// Attach binds the controller to s and asks it to load the shell. No
// envelope is sent until the shell announces readiness.
func (c *Controller) Attach(s Surface) error {
	if s == nil {
		return ErrNilSurface
	}

	c.mu.Lock()
	switch c.state {
	case StateClosed:
		c.mu.Unlock()
		return ErrClosed
	case StateUnattached:
	default:
		c.mu.Unlock()
		return ErrAlreadyAttached
	}
	c.surface = s
	c.state = StateAwaitingReady
	c.mu.Unlock()
	c.transitioned(StateUnattached, StateAwaitingReady)

	s.Intercept(inbound{c})
	url := c.shellURL
	err := s.Post(func() {
		if err := s.LoadURL(url); err != nil {
			c.logger.Error("load shell failed", "url", url, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("bridge: load shell: %w", err)
	}
	c.logger.Info("attached; waiting for shell", "url", url)
	return nil
}

// On registers fn for embed events named name, replacing any previous
// listener.
func (c *Controller) On(name string, fn Listener) error {
	return c.registry.Register(name, fn)
}

// Off removes the listener for name.
func (c *Controller) Off(name string) {
	c.registry.Unregister(name)
}

// Trigger sends a host event into the shell. It may be called in any
// attached state, though the shell only acts on it once ready.
func (c *Controller) Trigger(name string, payload any) error {
	if name == "" {
		return ErrEmptyEventName
	}
	env, err := envelope.NewHostEvent(name, payload)
	if err != nil {
		return err
	}
	return c.send(env)
}

// PostEnvelope sends an arbitrary envelope-shaped message.
func (c *Controller) PostEnvelope(msg map[string]any) error {
	if t, ok := msg["type"].(string); !ok || t == "" {
		return ErrInvalidEnvelope
	}
	raw, err := envelope.Raw(copyMap(msg))
	if err != nil {
		return err
	}
	return c.send(envelope.Unknown{Raw: string(raw)})
}

// Teardown closes the session: the surface is blanked and destroyed,
// pending token fetches are abandoned, and later traffic is dropped. It is
// safe to call more than once, including from a listener.
//
// Called from another goroutine, Teardown does not wait for a listener the
// surface context is already invoking. Call it on the surface context
// (through Surface.Post or from a listener) when no listener may run after
// it returns.
func (c *Controller) Teardown() error {
	c.mu.Lock()
	prev := c.state
	if prev == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	s := c.surface
	c.mu.Unlock()

	c.cancel()
	c.registry.Clear()
	c.transitioned(prev, StateClosed)

	if s == nil {
		return nil
	}
	err := s.Post(func() {
		if err := s.LoadURL(blankURL); err != nil {
			c.logger.Warn("blank surface failed", "error", err)
		}
		if err := s.Destroy(); err != nil {
			c.logger.Warn("destroy surface failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("bridge: release surface: %w", err)
	}
	c.logger.Info("torn down")
	return nil
}

// WaitIdle blocks until in-flight token fetches have finished.
func (c *Controller) WaitIdle(ctx context.Context) error {
	return c.tokens.wait(ctx)
}

// send renders env and queues it for evaluation on the surface context.
// Sends that are still queued when the controller closes are skipped.
func (c *Controller) send(env envelope.Envelope) error {
	script, err := envelope.Script(env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	s, state := c.surface, c.state
	c.mu.Unlock()
	switch {
	case state == StateClosed:
		return ErrClosed
	case s == nil:
		return ErrNotAttached
	}

	return s.Post(func() {
		if c.State() == StateClosed {
			return
		}
		if err := s.EvaluateScript(script, nil); err != nil {
			c.logger.Warn("deliver envelope failed", "type", env.Type(), "error", err)
		}
	})
}

func (c *Controller) transitioned(from, to State) {
	c.logger.Debug("state change", "from", from, "to", to)
	if c.stateHook != nil {
		c.stateHook(from, to)
	}
}

// inbound is the Handler the controller installs on its surface.
type inbound struct {
	c *Controller
}

func (in inbound) PageLoaded(url string) {
	c := in.c
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.pageLoads++
	c.mu.Unlock()
	c.logger.Debug("page loaded", "url", url)
}

func (in inbound) Message(raw string) {
	c := in.c
	env := envelope.Decode(raw)
	state := c.State()
	if state == StateClosed || state == StateUnattached {
		return
	}

	switch m := env.(type) {
	case envelope.ShellReady:
		c.handleShellReady()
	case envelope.Unknown:
		c.logger.Debug("ignoring undecodable message", "bytes", len(m.Raw))
	default:
		if state != StateReady {
			c.logger.Debug("ignoring message before shell ready", "type", env.Type())
			return
		}
		c.handleReady(env)
	}
}

func (c *Controller) handleReady(env envelope.Envelope) {
	switch m := env.(type) {
	case envelope.RequestAuthToken:
		c.handleTokenRequest()
	case envelope.EmbedEvent:
		if !c.registry.Dispatch(m.Name, m.Data) {
			c.logger.Debug("no listener for embed event", "event", m.Name)
		}
	default:
		c.logger.Debug("ignoring unexpected inbound message", "type", env.Type())
	}
}

func (c *Controller) handleShellReady() {
	c.mu.Lock()
	if c.state != StateAwaitingReady {
		state := c.state
		c.mu.Unlock()
		c.logger.Debug("ignoring repeated shell ready", "state", state)
		return
	}
	c.state = StateReady
	c.mu.Unlock()
	c.transitioned(StateAwaitingReady, StateReady)

	if err := c.send(c.initEnv); err != nil {
		c.logger.Error("send init failed", "error", err)
		return
	}
	if err := c.send(c.embedEnv); err != nil {
		c.logger.Error("send embed failed", "error", err)
		return
	}
	c.logger.Info("shell ready; init sent")
	if c.onInit != nil {
		c.initOnce.Do(c.onInit)
	}
}

func (c *Controller) handleTokenRequest() {
	started := c.tokens.request(c.ctx, func(token string) {
		if c.State() == StateClosed {
			c.logger.Debug("dropping token reply after teardown")
			return
		}
		if err := c.send(envelope.AuthTokenResponse{Token: token}); err != nil {
			c.logger.Warn("send token reply failed", "error", err)
		}
	})
	if !started {
		c.logger.Debug("token requested but no provider configured")
	}
}
