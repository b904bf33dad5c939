package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
	"github.com/thoughtspot/android-embed-sdk/internal/liveboard"
	"github.com/thoughtspot/android-embed-sdk/internal/session"
)

const maxTriggerBody = 1 << 20

// Options configures a Server.
type Options struct {
	// FrontendDir is served from disk when Dev is set; otherwise Frontend.
	FrontendDir    string
	Dev            bool
	Frontend       http.Handler
	AllowedOrigins []string
	AuthToken      string
	// ShellURL is the page the views frame; its origin is allowed as a
	// frame source.
	ShellURL string
	Privacy  *session.PrivacyFilter
	Logger   *slog.Logger
}

type Server struct {
	manager     *session.Manager
	hub         *Hub
	broadcaster *Broadcaster
	privacy     *session.PrivacyFilter
	logger      *slog.Logger

	frontendDir     string
	dev             bool
	embeddedHandler http.Handler
	allowedOrigins  map[string]bool
	allowedHosts    map[string]bool
	authToken       string
	frameSrc        string
	started         time.Time
}

func NewServer(manager *session.Manager, hub *Hub, broadcaster *Broadcaster, opts Options) *Server {
	s := &Server{
		manager:         manager,
		hub:             hub,
		broadcaster:     broadcaster,
		privacy:         opts.Privacy,
		logger:          opts.Logger,
		frontendDir:     opts.FrontendDir,
		dev:             opts.Dev,
		embeddedHandler: opts.Frontend,
		allowedOrigins:  make(map[string]bool),
		allowedHosts:    make(map[string]bool),
		authToken:       opts.AuthToken,
		frameSrc:        originOf(opts.ShellURL),
		started:         time.Now(),
	}
	if s.privacy == nil {
		s.privacy = &session.PrivacyFilter{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	for _, origin := range opts.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/ws/sessions", s.handleWatch)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.HandleFunc("/api/sessions/", s.handleSessionRoutes)
	mux.HandleFunc("/api/trigger", s.handleTriggerAll)
	mux.HandleFunc("/api/status", s.handleStatus)

	if s.dev {
		s.logger.Info("serving frontend from filesystem", "dir", s.frontendDir)
		mux.Handle("/", http.FileServer(http.Dir(s.frontendDir)))
	} else if s.embeddedHandler != nil {
		s.logger.Info("serving embedded frontend")
		mux.Handle("/", s.embeddedHandler)
	}
}

// Handler returns the full route set wrapped in the security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return s.securityHeaders(mux)
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{CheckOrigin: s.checkOrigin}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	logger := s.logger.With("remote", r.RemoteAddr)
	v := NewView(conn, logger)
	if err := s.hub.Reserve(v); err != nil {
		logger.Warn("rejecting surface", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(writeTimeout))
		v.Close()
		return
	}

	id, err := s.manager.Open(v, r.RemoteAddr)
	if err != nil {
		logger.Error("open session failed", "error", err)
		s.hub.Remove(v)
		v.Close()
		return
	}
	s.hub.Bind(v, id)
	logger.Info("surface connected", "session", id)

	go func() {
		defer s.hub.Remove(v)
		if err := v.ReadLoop(); err != nil {
			logger.Debug("surface read ended", "session", id, "error", err)
		}
		if err := s.manager.Close(id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			logger.Debug("session close", "session", id, "error", err)
		}
		logger.Info("surface disconnected", "session", id)
	}()
}

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.broadcaster == nil {
		http.Error(w, "session feed not available", http.StatusServiceUnavailable)
		return
	}

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		s.logger.Warn("rejecting feed client", "remote", r.RemoteAddr, "error", err)
		data, _ := json.Marshal(WSMessage{Type: MsgError, Payload: ErrorPayload{Message: err.Error()}})
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, data)
		conn.Close()
		return
	}

	go func() {
		defer s.broadcaster.RemoveClient(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.privacy.FilterSlice(s.manager.Store().GetAll()))
}

func (s *Server) handleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	// /api/sessions/{id} or /api/sessions/{id}/trigger
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.SplitN(path, "/", 2)
	sessionID, err := url.PathUnescape(parts[0])
	if err != nil || sessionID == "" {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	switch {
	case len(parts) == 1:
		s.handleSession(w, r, sessionID)
	case parts[1] == "trigger":
		s.handleTrigger(w, r, sessionID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	state, ok := s.manager.Store().Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.privacy.Apply(state))
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request, sessionID string) {
	req, ok := decodeTrigger(w, r)
	if !ok {
		return
	}
	if err := s.manager.Trigger(sessionID, liveboard.HostEvent(req.Event), req.Payload); err != nil {
		http.Error(w, err.Error(), triggerStatus(err))
		return
	}
	writeJSON(w, http.StatusAccepted, TriggerResponse{Sent: 1})
}

func (s *Server) handleTriggerAll(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	req, ok := decodeTrigger(w, r)
	if !ok {
		return
	}
	sent, err := s.manager.TriggerAll(liveboard.HostEvent(req.Event), req.Payload)
	if err != nil {
		http.Error(w, err.Error(), triggerStatus(err))
		return
	}
	writeJSON(w, http.StatusAccepted, TriggerResponse{Sent: sent})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, s.status(r.Context()))
}

func decodeTrigger(w http.ResponseWriter, r *http.Request) (TriggerRequest, bool) {
	var req TriggerRequest
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return req, false
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTriggerBody)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return req, false
	}
	if req.Event == "" {
		http.Error(w, "event is required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

func triggerStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, liveboard.ErrUnknownEvent):
		return http.StatusBadRequest
	case errors.Is(err, bridge.ErrClosed), errors.Is(err, bridge.ErrNotAttached):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// securityHeaders sets the page policy. Scripts may eval because envelope
// delivery runs host-supplied code against the shell frame.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	frameSrc := "'none'"
	if s.frameSrc != "" {
		frameSrc = s.frameSrc
	}
	csp := "default-src 'self'; script-src 'self' 'unsafe-eval'; connect-src 'self'; frame-src " + frameSrc
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", csp)
		next.ServeHTTP(w, r)
	})
}

func originOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Embed-Host-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}

	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
