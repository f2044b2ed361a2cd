package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "QDSUPPORT_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "QDSUPPORT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "storage.data_dir", typ: kString, env: "QDSUPPORT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.orders_dsn", typ: kString, env: "QDSUPPORT_STORAGE_ORDERS_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Storage.OrdersDSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.OrdersDSN },
	},
	{
		key: "proxy.openrouter_api_key", typ: kString, env: "QDSUPPORT_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Proxy.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.OpenRouterAPIKey },
	},
	{
		key: "proxy.base_url", typ: kString, env: "QDSUPPORT_PROXY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.BaseURL },
	},
	{
		key: "proxy.default_model", typ: kString, env: "QDSUPPORT_PROXY_DEFAULT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Proxy.DefaultModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.DefaultModel },
	},
	{
		key: "proxy.timeout", typ: kString, env: "QDSUPPORT_PROXY_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Proxy.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Proxy.Timeout },
	},
	{
		key: "log.level", typ: kString, env: "QDSUPPORT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.format", typ: kString, env: "QDSUPPORT_LOG_FORMAT",
		apply:   func(cfg *Config, v any) { cfg.Log.Format = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Format },
	},
	{
		key: "recommend.collaborative_weight", typ: kFloat, env: "QDSUPPORT_RECOMMEND_COLLABORATIVE_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Recommend.CollaborativeWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Recommend.CollaborativeWeight },
	},
	{
		key: "recommend.content_weight", typ: kFloat, env: "QDSUPPORT_RECOMMEND_CONTENT_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Recommend.ContentWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Recommend.ContentWeight },
	},
	{
		key: "recommend.neighbors", typ: kInt, env: "QDSUPPORT_RECOMMEND_NEIGHBORS",
		apply:   func(cfg *Config, v any) { cfg.Recommend.Neighbors = v.(int) },
		extract: func(cfg Config) any { return cfg.Recommend.Neighbors },
	},
	{
		key: "recommend.default_limit", typ: kInt, env: "QDSUPPORT_RECOMMEND_DEFAULT_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Recommend.DefaultLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Recommend.DefaultLimit },
	},
	{
		key: "worker.poll_interval", typ: kString, env: "QDSUPPORT_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
	{
		key: "chat.rate_limit", typ: kInt, env: "QDSUPPORT_CHAT_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Chat.RateLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.RateLimit },
	},
	{
		key: "chat.max_context_tokens", typ: kInt, env: "QDSUPPORT_CHAT_MAX_CONTEXT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Chat.MaxContextTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Chat.MaxContextTokens },
	},
	{
		key: "chat.session_idle_timeout", typ: kString, env: "QDSUPPORT_CHAT_SESSION_IDLE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Chat.SessionIdleTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Chat.SessionIdleTimeout },
	},
}

func lookupSpec(key string) (keySpec, bool) {
	for _, s := range specs {
		if s.key == key {
			return s, true
		}
	}
	return keySpec{}, false
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kFloat:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					s.apply(cfg, f)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse float from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kFloat:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				s.apply(cfg, f)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse float from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
