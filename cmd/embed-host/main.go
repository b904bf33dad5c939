package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/thoughtspot/android-embed-sdk/internal/auth"
	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
	"github.com/thoughtspot/android-embed-sdk/internal/config"
	"github.com/thoughtspot/android-embed-sdk/internal/frontend"
	"github.com/thoughtspot/android-embed-sdk/internal/liveboard"
	"github.com/thoughtspot/android-embed-sdk/internal/mock"
	"github.com/thoughtspot/android-embed-sdk/internal/session"
	"github.com/thoughtspot/android-embed-sdk/internal/telemetry"
	"github.com/thoughtspot/android-embed-sdk/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath   string
		mockMode     bool
		mockSessions int
		devMode      bool
		port         int
	)
	flagSet := pflag.NewFlagSet("embed-host", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "config.yaml", "path to config file (.yaml, .json or .jsonc)")
	flagSet.BoolVar(&mockMode, "mock", false, "drive in-process mock shells instead of waiting for pages")
	flagSet.IntVar(&mockSessions, "mock-sessions", 4, "number of mock shells in --mock mode")
	flagSet.BoolVar(&devMode, "dev", false, "serve the host page from the filesystem")
	flagSet.IntVar(&port, "port", 0, "override server port")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Trace.ServiceName, cfg.Trace.Endpoint)
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	provider, err := tokenProvider(cfg.Auth)
	if err != nil {
		return err
	}

	store := session.NewStore()
	manager := session.NewManager(store, controllerFactory(cfg, provider, logger), logger, cfg.Shell.ReadyWarnAfter)

	privacy := &session.PrivacyFilter{
		MaskRemoteAddrs: cfg.Privacy.MaskRemoteAddrs,
		MaskSessionIDs:  cfg.Privacy.MaskSessionIDs,
		MaskEventData:   cfg.Privacy.MaskEventData,
	}
	broadcaster := ws.NewBroadcaster(store, cfg.Server.BroadcastThrottle, cfg.Server.SnapshotInterval, cfg.Server.MaxWatchers)
	broadcaster.SetPrivacyFilter(privacy)
	broadcaster.SetLogger(logger)
	events := make(chan session.Event, 256)
	manager.SetEvents(events)
	go broadcaster.Run(events)

	hub := ws.NewHub(cfg.Server.MaxConnections)
	server := ws.NewServer(manager, hub, broadcaster, ws.Options{
		FrontendDir:    frontendDir(devMode),
		Dev:            devMode,
		Frontend:       frontend.Handler(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthToken:      cfg.Server.AuthToken,
		ShellURL:       cfg.Shell.URL,
		Privacy:        privacy,
		Logger:         logger,
	})

	if mockMode {
		logger.Info("starting in mock mode", "sessions", mockSessions)
		if err := startMock(ctx, manager, cfg.Shell.URL, mockSessions); err != nil {
			return err
		}
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr, "shell", cfg.Shell.URL, "liveboard", cfg.Liveboard.LiveboardID)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hub.CloseAll()
	manager.CloseAll()
	broadcaster.Stop()
	return httpServer.Shutdown(sctx)
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// tokenProvider returns nil when the config has no token source.
func tokenProvider(cfg config.AuthConfig) (bridge.TokenProvider, error) {
	switch cfg.Mode {
	case config.TokenNone, "":
		return nil, nil
	case config.TokenStatic:
		return bridge.StaticToken(cfg.Token), nil
	case config.TokenJWT:
		return &auth.Signer{
			Secret:   []byte(cfg.Secret),
			Issuer:   cfg.Issuer,
			Audience: cfg.Audience,
			Username: cfg.Username,
			TTL:      cfg.TTL,
		}, nil
	case config.TokenHTTP:
		header := make(http.Header, len(cfg.Headers))
		for k, v := range cfg.Headers {
			header.Set(k, v)
		}
		return &auth.HTTPProvider{
			Endpoint: cfg.Endpoint,
			Username: cfg.Username,
			Header:   header,
		}, nil
	default:
		return nil, fmt.Errorf("unknown auth mode %q", cfg.Mode)
	}
}

func controllerFactory(cfg *config.Config, provider bridge.TokenProvider, logger *slog.Logger) session.Factory {
	return func(id string, opts ...bridge.Option) (*liveboard.Controller, error) {
		base := []bridge.Option{
			bridge.WithLogger(logger.With("session", id)),
			bridge.WithShellURL(cfg.Shell.URL),
		}
		if provider != nil {
			base = append(base, bridge.WithTokenProvider(provider))
		}
		return liveboard.New(cfg.Liveboard, cfg.Embed, append(base, opts...)...)
	}
}

func startMock(ctx context.Context, manager *session.Manager, shellURL string, n int) error {
	gen := mock.NewGenerator(500 * time.Millisecond)
	for i := 0; i < n; i++ {
		shell := mock.NewShell(mock.WithShellURL(shellURL))
		gen.Add(shell, mock.Patterns[i%len(mock.Patterns)])
		if _, err := manager.Open(shell, fmt.Sprintf("mock-%d", i)); err != nil {
			return fmt.Errorf("open mock session: %w", err)
		}
	}
	gen.Start(ctx)
	return nil
}

// frontendDir locates internal/frontend/static for --dev.
func frontendDir(dev bool) string {
	if !dev {
		return ""
	}
	cwd, _ := os.Getwd()
	for _, candidate := range []string{
		filepath.Join(cwd, "internal", "frontend", "static"),
		filepath.Join(cwd, "..", "..", "internal", "frontend", "static"),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return filepath.Join(cwd, "internal", "frontend", "static")
}
