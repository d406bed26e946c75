package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key        string
	typ        keyType
	env        string
	secret     bool
	secretName string
	apply      func(cfg *Config, v any)
	extract    func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "ADVISOR_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "engine.backend", typ: kString, env: "ADVISOR_ENGINE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Engine.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Backend },
	},
	{
		key: "engine.base_url", typ: kString, env: "ADVISOR_ENGINE_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Engine.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.BaseURL },
	},
	{
		key: "engine.api_key", typ: kString, env: "ADVISOR_ENGINE_API_KEY",
		secret: true, secretName: secretEngineKey,
		apply:   func(cfg *Config, v any) { cfg.Engine.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.APIKey },
	},
	{
		key: "engine.chat_model", typ: kString, env: "ADVISOR_ENGINE_CHAT_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.ChatModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.ChatModel },
	},
	{
		key: "engine.embed_model", typ: kString, env: "ADVISOR_ENGINE_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.EmbedModel },
	},
	{
		key: "generation.backend", typ: kString, env: "ADVISOR_GENERATION_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Generation.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.Backend },
	},
	{
		key: "generation.openrouter_model", typ: kString, env: "ADVISOR_GENERATION_OPENROUTER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Generation.OpenRouterModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.OpenRouterModel },
	},
	{
		key: "generation.openrouter_api_key", typ: kString, env: "ADVISOR_OPENROUTER_API_KEY",
		secret: true, secretName: secretOpenRouterKey,
		apply:   func(cfg *Config, v any) { cfg.Generation.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Generation.OpenRouterAPIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "ADVISOR_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "source.backend", typ: kString, env: "ADVISOR_SOURCE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Source.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.Backend },
	},
	{
		key: "source.bucket", typ: kString, env: "ADVISOR_SOURCE_BUCKET",
		apply:   func(cfg *Config, v any) { cfg.Source.Bucket = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.Bucket },
	},
	{
		key: "source.root", typ: kString, env: "ADVISOR_SOURCE_ROOT",
		apply:   func(cfg *Config, v any) { cfg.Source.Root = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.Root },
	},
	{
		key: "source.prefix", typ: kString, env: "ADVISOR_SOURCE_PREFIX",
		apply:   func(cfg *Config, v any) { cfg.Source.Prefix = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.Prefix },
	},
	{
		key: "source.credentials_file", typ: kString, env: "ADVISOR_SOURCE_CREDENTIALS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Source.CredentialsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.CredentialsFile },
	},
	{
		key: "customers.all_users_file", typ: kString, env: "ADVISOR_CUSTOMERS_ALL_USERS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Customers.AllUsersFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Customers.AllUsersFile },
	},
	{
		key: "customers.pensions_file", typ: kString, env: "ADVISOR_CUSTOMERS_PENSIONS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Customers.PensionsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Customers.PensionsFile },
	},
	{
		key: "customers.insurance_file", typ: kString, env: "ADVISOR_CUSTOMERS_INSURANCE_FILE",
		apply:   func(cfg *Config, v any) { cfg.Customers.InsuranceFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Customers.InsuranceFile },
	},
	{
		key: "customers.ttl", typ: kDuration, env: "ADVISOR_CUSTOMERS_TTL",
		apply:   func(cfg *Config, v any) { cfg.Customers.TTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Customers.TTL },
	},
	{
		key: "ingest.chunk_size", typ: kInt, env: "ADVISOR_INGEST_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Ingest.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.ChunkSize },
	},
	{
		key: "ingest.overlap", typ: kInt, env: "ADVISOR_INGEST_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Ingest.Overlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.Overlap },
	},
	{
		key: "ingest.batch_size", typ: kInt, env: "ADVISOR_INGEST_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Ingest.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.BatchSize },
	},
	{
		key: "ingest.rate_limit", typ: kFloat, env: "ADVISOR_INGEST_RATE_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Ingest.RateLimit = v.(float64) },
		extract: func(cfg Config) any { return cfg.Ingest.RateLimit },
	},
	{
		key: "ingest.poll_interval", typ: kDuration, env: "ADVISOR_INGEST_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Ingest.PollInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Ingest.PollInterval },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "ADVISOR_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.max_context_tokens", typ: kInt, env: "ADVISOR_RETRIEVAL_MAX_CONTEXT_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.MaxContextTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.MaxContextTokens },
	},
	{
		key: "cache.backend", typ: kString, env: "ADVISOR_CACHE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Cache.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.Backend },
	},
	{
		key: "cache.key_includes_top_k", typ: kBool, env: "ADVISOR_CACHE_KEY_INCLUDES_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Cache.KeyIncludesTopK = v.(bool) },
		extract: func(cfg Config) any { return cfg.Cache.KeyIncludesTopK },
	},
	{
		key: "cache.redis_addr", typ: kString, env: "ADVISOR_CACHE_REDIS_ADDR",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisAddr = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisAddr },
	},
	{
		key: "cache.redis_password", typ: kString, env: "ADVISOR_CACHE_REDIS_PASSWORD",
		secret: true, secretName: secretRedisPassword,
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisPassword = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisPassword },
	},
	{
		key: "cache.redis_db", typ: kInt, env: "ADVISOR_CACHE_REDIS_DB",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisDB = v.(int) },
		extract: func(cfg Config) any { return cfg.Cache.RedisDB },
	},
	{
		key: "session.idle_ttl", typ: kDuration, env: "ADVISOR_SESSION_IDLE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Session.IdleTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Session.IdleTTL },
	},
	{
		key: "session.token_ttl", typ: kDuration, env: "ADVISOR_SESSION_TOKEN_TTL",
		apply:   func(cfg *Config, v any) { cfg.Session.TokenTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Session.TokenTTL },
	},
	{
		key: "session.sweep_interval", typ: kDuration, env: "ADVISOR_SESSION_SWEEP_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Session.SweepInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Session.SweepInterval },
	},
	{
		key: "events.amqp_url", typ: kString, env: "ADVISOR_AMQP_URL",
		secret: true, secretName: secretAMQPURL,
		apply:   func(cfg *Config, v any) { cfg.Events.AMQPURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.AMQPURL },
	},
	{
		key: "events.queue", typ: kString, env: "ADVISOR_EVENTS_QUEUE",
		apply:   func(cfg *Config, v any) { cfg.Events.Queue = v.(string) },
		extract: func(cfg Config) any { return cfg.Events.Queue },
	},
	{
		key: "log.level", typ: kString, env: "ADVISOR_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

// parseValue converts raw text to the Go type of t.
func parseValue(t keyType, raw string) (any, error) {
	switch t {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	default:
		return raw, nil
	}
}

func (t keyType) String() string {
	switch t {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	case kFloat:
		return "float"
	case kDuration:
		return "duration"
	default:
		return "string"
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", s.typ, s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
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
		v, err := parseValue(s.typ, raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typ, s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
