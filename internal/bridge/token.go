package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var ErrEmptyToken = errors.New("bridge: token provider returned an empty token")

// TokenProvider produces auth tokens for the shell on demand. Token may
// block; it runs on its own goroutine and ctx is cancelled when the
// controller is torn down.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) {
	return string(s), nil
}

// tokenMediator relays tokens from the host's provider to the shell. Each
// request is fetched independently; a failed fetch is answered with an
// empty token.
type tokenMediator struct {
	provider TokenProvider
	tracer   trace.Tracer
	logger   *slog.Logger

	mu       sync.Mutex
	inflight int
	// idle is closed when inflight drops back to zero.
	idle chan struct{}
}

// request starts a fetch and calls reply with the result once it resolves.
// It returns false when no provider is configured, in which case reply is
// never called.
func (m *tokenMediator) request(ctx context.Context, reply func(token string)) bool {
	if m.provider == nil {
		return false
	}
	id := uuid.NewString()
	m.begin()
	go func() {
		defer m.end()
		reply(m.fetch(ctx, id))
	}()
	return true
}

func (m *tokenMediator) begin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inflight == 0 {
		m.idle = make(chan struct{})
	}
	m.inflight++
}

func (m *tokenMediator) end() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inflight--
	if m.inflight == 0 {
		close(m.idle)
	}
}

func (m *tokenMediator) fetch(ctx context.Context, id string) string {
	ctx, span := m.tracer.Start(ctx, "bridge.token_fetch",
		trace.WithAttributes(attribute.String("bridge.request_id", id)))
	defer span.End()

	token, err := m.call(ctx)
	if err == nil && token == "" {
		err = ErrEmptyToken
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token fetch failed")
		m.logger.Warn("auth token fetch failed", "request_id", id, "error", err)
		return ""
	}
	m.logger.Debug("auth token fetched", "request_id", id)
	return token
}

func (m *tokenMediator) call(ctx context.Context) (token string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bridge: token provider panicked: %v", r)
		}
	}()
	return m.provider.Token(ctx)
}

// wait blocks until no fetch is in flight or ctx is done. Fetches may
// start while it waits.
func (m *tokenMediator) wait(ctx context.Context) error {
	m.mu.Lock()
	if m.inflight == 0 {
		m.mu.Unlock()
		return nil
	}
	done := m.idle
	m.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
