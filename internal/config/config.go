// Package config loads the embed host configuration from a YAML or JSONC
// file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
	"github.com/thoughtspot/android-embed-sdk/internal/liveboard"
)

type Config struct {
	Server    ServerConfig         `yaml:"server"`
	Shell     ShellConfig          `yaml:"shell"`
	Embed     bridge.EmbedConfig   `yaml:"embed"`
	Liveboard liveboard.ViewConfig `yaml:"liveboard"`
	Auth      AuthConfig           `yaml:"auth"`
	Privacy   PrivacyConfig        `yaml:"privacy"`
	Log       LogConfig            `yaml:"log"`
	Trace     TraceConfig          `yaml:"trace"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// AuthToken guards the HTTP and WebSocket endpoints when set.
	AuthToken         string        `yaml:"auth_token"`
	MaxConnections    int           `yaml:"max_connections"`
	MaxWatchers       int           `yaml:"max_watchers"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

type ShellConfig struct {
	URL string `yaml:"url"`
	// ReadyWarnAfter only logs; sessions keep waiting.
	ReadyWarnAfter time.Duration `yaml:"ready_warn_after"`
}

// TokenMode selects where auth tokens for the shell come from.
type TokenMode string

const (
	TokenNone   TokenMode = "none"
	TokenStatic TokenMode = "static"
	TokenJWT    TokenMode = "jwt"
	TokenHTTP   TokenMode = "http"
)

type AuthConfig struct {
	Mode     TokenMode         `yaml:"mode"`
	Token    string            `yaml:"token"`
	Secret   string            `yaml:"secret"`
	Issuer   string            `yaml:"issuer"`
	Audience string            `yaml:"audience"`
	Username string            `yaml:"username"`
	TTL      time.Duration     `yaml:"ttl"`
	Endpoint string            `yaml:"endpoint"`
	Headers  map[string]string `yaml:"headers"`
}

type PrivacyConfig struct {
	MaskRemoteAddrs bool `yaml:"mask_remote_addrs"`
	MaskSessionIDs  bool `yaml:"mask_session_ids"`
	MaskEventData   bool `yaml:"mask_event_data"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TraceConfig enables OTLP/HTTP span export when Endpoint is set.
type TraceConfig struct {
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// envOverrides are applied after the file. Unset variables leave the file
// values alone.
type envOverrides struct {
	Host            string `env:"EMBED_HOST_ADDR"`
	Port            int    `env:"EMBED_PORT"`
	AccessToken     string `env:"EMBED_ACCESS_TOKEN"`
	ShellURL        string `env:"EMBED_SHELL_URL"`
	ThoughtSpotHost string `env:"EMBED_THOUGHTSPOT_HOST"`
	AuthType        string `env:"EMBED_AUTH_TYPE"`
	LiveboardID     string `env:"EMBED_LIVEBOARD_ID"`
	TokenMode       string `env:"EMBED_TOKEN_MODE"`
	TokenSecret     string `env:"EMBED_TOKEN_SECRET"`
	LogLevel        string `env:"EMBED_LOG_LEVEL"`
	TraceEndpoint   string `env:"EMBED_OTEL_ENDPOINT"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:              8080,
			Host:              "127.0.0.1",
			MaxConnections:    64,
			MaxWatchers:       16,
			SnapshotInterval:  5 * time.Second,
			BroadcastThrottle: 100 * time.Millisecond,
		},
		Shell: ShellConfig{
			URL:            bridge.DefaultShellURL,
			ReadyWarnAfter: 30 * time.Second,
		},
		Embed: bridge.EmbedConfig{
			AuthType: bridge.AuthNone,
		},
		Auth: AuthConfig{
			Mode: TokenNone,
			TTL:  5 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Trace: TraceConfig{
			ServiceName: "embed-host",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error; the defaults and environment are used.
func Load(path string) (*Config, error) {
	return load(path, nil)
}

func load(path string, environ map[string]string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if ext := strings.ToLower(filepath.Ext(path)); ext == ".json" || ext == ".jsonc" {
				data = jsonc.ToJSON(data)
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(environ); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(environ map[string]string) error {
	var o envOverrides
	if err := env.ParseWithOptions(&o, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("config: parse env: %w", err)
	}

	if o.Host != "" {
		c.Server.Host = o.Host
	}
	if o.Port != 0 {
		c.Server.Port = o.Port
	}
	if o.AccessToken != "" {
		c.Server.AuthToken = o.AccessToken
	}
	if o.ShellURL != "" {
		c.Shell.URL = o.ShellURL
	}
	if o.ThoughtSpotHost != "" {
		c.Embed.ThoughtSpotHost = o.ThoughtSpotHost
	}
	if o.AuthType != "" {
		c.Embed.AuthType = bridge.AuthType(o.AuthType)
	}
	if o.LiveboardID != "" {
		c.Liveboard.LiveboardID = o.LiveboardID
	}
	if o.TokenMode != "" {
		c.Auth.Mode = TokenMode(o.TokenMode)
	}
	if o.TokenSecret != "" {
		c.Auth.Secret = o.TokenSecret
	}
	if o.LogLevel != "" {
		c.Log.Level = o.LogLevel
	}
	if o.TraceEndpoint != "" {
		c.Trace.Endpoint = o.TraceEndpoint
	}
	return nil
}

// Validate returns the first configuration error.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Server.SnapshotInterval <= 0 {
		return fmt.Errorf("config: server.snapshot_interval %s must be positive", c.Server.SnapshotInterval)
	}
	if c.Server.BroadcastThrottle <= 0 {
		return fmt.Errorf("config: server.broadcast_throttle %s must be positive", c.Server.BroadcastThrottle)
	}
	u, err := url.Parse(c.Shell.URL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("config: shell.url %q is not an http(s) URL", c.Shell.URL)
	}
	if err := c.Embed.Validate(); err != nil {
		return fmt.Errorf("config: embed: %w", err)
	}
	if err := c.Liveboard.Validate(); err != nil {
		return fmt.Errorf("config: liveboard: %w", err)
	}
	if err := c.Auth.validate(c.Embed.AuthType); err != nil {
		return err
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config: log.format %q must be text or json", c.Log.Format)
	}
	return nil
}

func (a AuthConfig) validate(authType bridge.AuthType) error {
	switch a.Mode {
	case TokenNone, "":
		if authType.TokenBased() {
			return fmt.Errorf("config: embed.auth_type %s needs auth.mode static, jwt or http", authType)
		}
	case TokenStatic:
		if a.Token == "" {
			return errors.New("config: auth.token is required for static mode")
		}
	case TokenJWT:
		if len(a.Secret) < 32 {
			return errors.New("config: auth.secret must be at least 32 bytes for jwt mode")
		}
		if a.Username == "" {
			return errors.New("config: auth.username is required for jwt mode")
		}
	case TokenHTTP:
		u, err := url.Parse(a.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: auth.endpoint %q is not a URL", a.Endpoint)
		}
	default:
		return fmt.Errorf("config: unknown auth.mode %q", a.Mode)
	}
	return nil
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}
