package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server          ServerConfig
	PublicHost      string
	ContextLines    int
	MaxContextLines int
	DisplayLines    int
	DisplayMaxChars int
	Registry        RegistryConfig
	Gateway         GatewayConfig
	NotifyTimeout   time.Duration
	Pushover        PushoverConfig
	Telegram        TelegramConfig
	Listener        ListenerConfig
	Log             LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RegistryConfig struct {
	Retention int
	Backend   string
	StateDir  string
}

type GatewayConfig struct {
	Timeout      time.Duration
	RetryBackoff []time.Duration
}

type PushoverConfig struct {
	Enabled  bool
	AppToken string
	UserKey  string
}

type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string
}

type ListenerConfig struct {
	Interval       time.Duration
	PollTimeout    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	SpawnCommand   string
	SpawnWindow    string
}

type LogConfig struct {
	Level  string
	Format string
}

const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

func DefaultConfig() Config {
	return Config{
		Server:          ServerConfig{Host: "0.0.0.0", Port: 5001},
		ContextLines:    15,
		MaxContextLines: 10,
		DisplayLines:    50,
		DisplayMaxChars: 8000,
		Registry: RegistryConfig{
			Retention: 10,
			Backend:   BackendSQLite,
			StateDir:  defaultStateDir(),
		},
		Gateway: GatewayConfig{
			Timeout:      3 * time.Second,
			RetryBackoff: []time.Duration{100 * time.Millisecond, 300 * time.Millisecond},
		},
		NotifyTimeout: 10 * time.Second,
		Listener: ListenerConfig{
			Interval:       2 * time.Second,
			PollTimeout:    25 * time.Second,
			BackoffInitial: 1 * time.Second,
			BackoffMax:     60 * time.Second,
			SpawnCommand:   "claude",
			SpawnWindow:    "TGClaude",
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// DefaultPath resolves the config file location.
// Priority: REMOTEUI_CONFIG env > ~/.config/claude-remote-ui/config.yaml
func DefaultPath() string {
	if env := strings.TrimSpace(os.Getenv("REMOTEUI_CONFIG")); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".config", "claude-remote-ui", "config.yaml")
}

func defaultStateDir() string {
	if env := strings.TrimSpace(os.Getenv("REMOTEUI_STATE_DIR")); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".claude-remote-ui"
	}
	return filepath.Join(home, ".local", "state", "claude-remote-ui")
}

// Load overlays the YAML file at path on DefaultConfig. A missing file is
// not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse overlays YAML document data on DefaultConfig.
func Parse(data []byte) (Config, error) {
	cfg := DefaultConfig()
	var doc fileConfig
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := doc.apply(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.ContextLines <= 0 {
		return fmt.Errorf("context_lines must be positive")
	}
	if c.Registry.Retention <= 0 {
		return fmt.Errorf("registry.retention must be positive")
	}
	switch c.Registry.Backend {
	case BackendSQLite, BackendFile:
	default:
		return fmt.Errorf("registry.backend must be %q or %q, got %q", BackendSQLite, BackendFile, c.Registry.Backend)
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("gateway.timeout must be positive")
	}
	if c.Listener.Interval <= 0 || c.Listener.BackoffInitial <= 0 || c.Listener.BackoffMax < c.Listener.BackoffInitial {
		return fmt.Errorf("listener interval and backoff must be positive with backoff_max >= backoff_initial")
	}
	return nil
}

// BaseURL is the deep-link origin handed to push transports.
func (c Config) BaseURL() string {
	host := strings.TrimSpace(c.PublicHost)
	if host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("http://%s:%d", host, c.Server.Port)
}

// RegistryPath returns the durable store path for the configured backend.
func (c Config) RegistryPath() string {
	if c.Registry.Backend == BackendFile {
		return filepath.Join(c.Registry.StateDir, "instances.json")
	}
	return filepath.Join(c.Registry.StateDir, "state.db")
}

// LockPath is the cross-process lock guarding registry mutations.
func (c Config) LockPath() string {
	return filepath.Join(c.Registry.StateDir, "registry.lock")
}
