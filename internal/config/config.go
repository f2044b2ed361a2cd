// Package config loads the qdsupport configuration from built-in defaults,
// the platform config backend, an optional .env file and QDSUPPORT_*
// environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const keychainService = "qdsupport"

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Proxy     ProxyConfig
	Log       LogConfig
	Recommend RecommendConfig
	Worker    WorkerConfig
	Chat      ChatConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type StorageConfig struct {
	DataDir string
	// OrdersDSN points at a PostgreSQL database holding users and orders.
	// Empty means order history comes from the local SQLite store.
	OrdersDSN string
}

type ProxyConfig struct {
	OpenRouterAPIKey string
	BaseURL          string
	DefaultModel     string
	Timeout          string // Go duration
}

type LogConfig struct {
	Level  string
	Format string // json or console
}

type RecommendConfig struct {
	CollaborativeWeight float64
	ContentWeight       float64
	Neighbors           int
	DefaultLimit        int
}

type WorkerConfig struct {
	PollInterval string // Go duration
}

type ChatConfig struct {
	RateLimit        int // messages per minute per client IP
	MaxContextTokens int

	// SessionIdleTimeout is how long an unused session stays in memory
	// (Go duration).
	SessionIdleTimeout string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8090,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Proxy: ProxyConfig{
			BaseURL:      "https://openrouter.ai/api/v1",
			DefaultModel: "anthropic/claude-3.5-sonnet",
			Timeout:      "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Recommend: RecommendConfig{
			CollaborativeWeight: 0.6,
			ContentWeight:       0.4,
			Neighbors:           5,
			DefaultLimit:        5,
		},
		Worker: WorkerConfig{
			PollInterval: "500ms",
		},
		Chat: ChatConfig{
			RateLimit:          30,
			MaxContextTokens:   1500,
			SessionIdleTimeout: "30m",
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.quickdeliver.qdsupport)
// and secrets live in the macOS Keychain.
// Elsewhere the backend is a JSON file at $XDG_CONFIG_HOME/qdsupport/config.json
// and secrets live in $XDG_DATA_HOME/qdsupport/secrets.json.
// QDSUPPORT_CONFIG_FILE and QDSUPPORT_SECRETS_FILE replace either store with
// a JSON file on any platform.
//
// Environment variables (QDSUPPORT_*) override backend values on all
// platforms. Variables already set in the process win over .env entries.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newPlatformBackend(), NewKeychain())
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("reading %s: %w", path, err)
}

func loadWith(b ConfigBackend, kc Keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	// Try the secret store for the API key if still empty.
	if cfg.Proxy.OpenRouterAPIKey == "" {
		if key, err := kc.Get(keychainService, openRouterAccount); err == nil && key != "" {
			cfg.Proxy.OpenRouterAPIKey = key
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must not be empty")
	}
	if c.Recommend.CollaborativeWeight < 0 || c.Recommend.ContentWeight < 0 {
		return fmt.Errorf("recommend weights must be non-negative")
	}
	return nil
}

// MissingAPIKeyHint explains where the OpenRouter key can be configured.
func MissingAPIKeyHint() string {
	return "OpenRouter API key not configured; chat replies will fall back to an apology. " +
		"Set QDSUPPORT_OPENROUTER_API_KEY" + apiKeyHint()
}

// Duration parses a duration setting. Invalid values log a warning and
// return def.
func Duration(key, raw string, def time.Duration) time.Duration {
	if strings.TrimSpace(raw) == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		slog.Warn("invalid duration, using default", "key", key, "value", raw, "default", def.String())
		return def
	}
	return d
}
