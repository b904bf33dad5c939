package mock

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
	"github.com/thoughtspot/android-embed-sdk/internal/envelope"
	"github.com/thoughtspot/android-embed-sdk/internal/liveboard"
)

// Pattern picks how a scripted shell behaves once the Liveboard has
// rendered.
type Pattern string

const (
	// PatternSteady emits one interaction per tick.
	PatternSteady Pattern = "steady"
	// PatternBurst stays quiet and then emits several events at once.
	PatternBurst Pattern = "burst"
	// PatternError renders, interacts for a while, then fails and goes
	// quiet.
	PatternError Pattern = "error"
	// PatternIdle renders and then does nothing.
	PatternIdle Pattern = "idle"
)

// Patterns lists every pattern in the order --mock mode cycles through.
var Patterns = []Pattern{PatternSteady, PatternBurst, PatternError, PatternIdle}

const errorAfterTicks = 12

type scripted struct {
	shell   *Shell
	pattern Pattern

	mu         sync.Mutex
	rendered   bool
	failed     bool
	tokenBased bool
	tick       int
}

// Generator drives mock shells like a live Liveboard would: it answers the
// handshake, asks for tokens when the auth type needs them, reacts to host
// events, and emits user interaction on a timer.
type Generator struct {
	interval time.Duration
	rng      *rand.Rand
	rngMu    sync.Mutex

	mu     sync.Mutex
	shells []*scripted
}

func NewGenerator(interval time.Duration) *Generator {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Generator{
		interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add scripts shell with pattern. It must be called before the shell is
// attached so that the generator sees the handshake.
func (g *Generator) Add(shell *Shell, pattern Pattern) {
	s := &scripted{shell: shell, pattern: pattern}
	shell.OnEnvelope(func(env envelope.Envelope) { g.observe(s, env) })

	g.mu.Lock()
	g.shells = append(g.shells, s)
	g.mu.Unlock()
}

func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.step()
		}
	}
}

// step advances every live shell by one tick.
func (g *Generator) step() {
	g.mu.Lock()
	shells := append([]*scripted(nil), g.shells...)
	g.mu.Unlock()

	live := shells[:0]
	for _, s := range shells {
		if s.shell.Destroyed() {
			continue
		}
		live = append(live, s)
		g.advance(s)
	}

	g.mu.Lock()
	g.shells = live
	g.mu.Unlock()
}

func (g *Generator) advance(s *scripted) {
	s.mu.Lock()
	if !s.rendered || s.failed {
		s.mu.Unlock()
		return
	}
	s.tick++
	tick := s.tick
	s.mu.Unlock()

	switch s.pattern {
	case PatternSteady:
		g.interact(s)
	case PatternBurst:
		if tick%4 == 0 {
			for i := 0; i < 3; i++ {
				g.interact(s)
			}
		}
	case PatternError:
		if tick < errorAfterTicks {
			g.interact(s)
			return
		}
		s.mu.Lock()
		s.failed = true
		s.mu.Unlock()
		g.emit(s, liveboard.EventError, `{"errorType":"FULLSCREEN","message":"Liveboard failed to load data"}`)
		if s.tokenBased {
			g.emit(s, liveboard.EventAuthExpire, "")
		}
	}
}

var interactions = []liveboard.EmbedEvent{
	liveboard.EventVizPointClick,
	liveboard.EventVizPointClick,
	liveboard.EventVizPointDoubleClick,
	liveboard.EventData,
	liveboard.EventDrillDown,
	liveboard.EventFilterChanged,
	liveboard.EventDialogOpen,
}

func (g *Generator) interact(s *scripted) {
	g.rngMu.Lock()
	ev := interactions[g.rng.Intn(len(interactions))]
	viz := g.rng.Intn(6) + 1
	g.rngMu.Unlock()

	g.emit(s, ev, fmt.Sprintf(`{"vizId":"viz-%d","ts":%d}`, viz, time.Now().UnixMilli()))
}

// observe reacts to what the host sends the shell.
func (g *Generator) observe(s *scripted, env envelope.Envelope) {
	switch m := env.(type) {
	case envelope.Init:
		authType := bridge.AuthType(gjson.GetBytes(m.Payload, "authType").String())
		s.mu.Lock()
		s.tokenBased = authType.TokenBased()
		s.mu.Unlock()
		g.emit(s, liveboard.EventInit, "")
	case envelope.Embed:
		s.mu.Lock()
		tokenBased := s.tokenBased
		s.mu.Unlock()
		if tokenBased {
			_ = s.shell.EmitEnvelope(envelope.RequestAuthToken{})
			return
		}
		g.render(s)
	case envelope.AuthTokenResponse:
		if m.Token == "" {
			g.emit(s, liveboard.EventAuthFailure, `{"type":"EMPTY_TOKEN"}`)
			return
		}
		g.emit(s, liveboard.EventAuthInit, `{"userGUID":"mock-user"}`)
		g.render(s)
	case envelope.HostEvent:
		g.answer(s, m)
	}
}

func (g *Generator) render(s *scripted) {
	g.emit(s, liveboard.EventLoad, "")
	g.emit(s, liveboard.EventLiveboardInfo, `{"pinboardId":"mock-liveboard","tabs":2}`)
	g.emit(s, liveboard.EventLiveboardRendered, `{"name":"Mock Liveboard"}`)
	s.mu.Lock()
	s.rendered = true
	s.mu.Unlock()
}

func (g *Generator) answer(s *scripted, ev envelope.HostEvent) {
	switch liveboard.HostEvent(ev.Name) {
	case liveboard.HostReload:
		g.render(s)
	case liveboard.HostSearch, liveboard.HostUpdateRuntimeFilters, liveboard.HostUpdateParameters:
		g.emit(s, liveboard.EventFilterChanged, string(ev.Payload))
		g.emit(s, liveboard.EventData, `{"rows":42}`)
	case liveboard.HostNavigate:
		g.emit(s, liveboard.EventRouteChange, string(ev.Payload))
	case liveboard.HostDownloadAsPDF:
		g.emit(s, liveboard.EventDownload, "")
	case liveboard.HostSave:
		g.emit(s, liveboard.EventSave, "")
	case liveboard.HostShare:
		g.emit(s, liveboard.EventShare, "")
	case liveboard.HostPresent:
		g.emit(s, liveboard.EventPresent, "")
	}
}

func (g *Generator) emit(s *scripted, ev liveboard.EmbedEvent, data string) {
	var d *string
	if data != "" {
		d = envelope.StringPtr(data)
	}
	_ = s.shell.EmitEnvelope(envelope.EmbedEvent{Name: ev.String(), Data: d})
}
