// Package config loads advisor settings from defaults, the TOML config
// file, ADVISOR_* environment variables and the secrets file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Engine     EngineConfig
	Generation GenerationConfig
	Storage    StorageConfig
	Source     SourceConfig
	Customers  CustomersConfig
	Ingest     IngestConfig
	Retrieval  RetrievalConfig
	Cache      CacheConfig
	Session    SessionConfig
	Events     EventsConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type EngineConfig struct {
	Backend    string // "ollama" or "openai"
	BaseURL    string
	APIKey     string
	ChatModel  string
	EmbedModel string
}

type GenerationConfig struct {
	Backend          string // "engine" or "openrouter"
	OpenRouterModel  string
	OpenRouterAPIKey string
}

type StorageConfig struct {
	DataDir string
}

type SourceConfig struct {
	Backend         string // "gcs" or "local"
	Bucket          string
	Root            string
	Prefix          string
	CredentialsFile string
}

type CustomersConfig struct {
	AllUsersFile  string
	PensionsFile  string
	InsuranceFile string
	TTL           time.Duration
}

type IngestConfig struct {
	ChunkSize    int
	Overlap      int
	BatchSize    int
	RateLimit    float64 // embedding batches per second, 0 = unlimited
	PollInterval time.Duration
}

type RetrievalConfig struct {
	TopK             int
	MaxContextTokens int
}

type CacheConfig struct {
	Backend         string // "memory" or "redis"
	KeyIncludesTopK bool
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
}

type SessionConfig struct {
	IdleTTL       time.Duration
	TokenTTL      time.Duration
	SweepInterval time.Duration
}

type EventsConfig struct {
	AMQPURL string
	Queue   string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4000,
		},
		Engine: EngineConfig{
			Backend:    "ollama",
			BaseURL:    "http://localhost:11434",
			ChatModel:  "llama3.2",
			EmbedModel: "nomic-embed-text",
		},
		Generation: GenerationConfig{
			Backend:         "engine",
			OpenRouterModel: "google/gemini-2.5-pro",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Source: SourceConfig{
			Backend: "local",
			Root:    "data",
		},
		Customers: CustomersConfig{
			AllUsersFile:  "all-users.csv",
			PensionsFile:  "users-pensions.csv",
			InsuranceFile: "user-insurance.csv",
			TTL:           10 * time.Minute,
		},
		Ingest: IngestConfig{
			ChunkSize:    500,
			Overlap:      50,
			BatchSize:    20,
			PollInterval: 500 * time.Millisecond,
		},
		Retrieval: RetrievalConfig{
			TopK:             5,
			MaxContextTokens: 4000,
		},
		Cache: CacheConfig{
			Backend:   "memory",
			RedisAddr: "localhost:6379",
		},
		Session: SessionConfig{
			IdleTTL:       30 * time.Minute,
			TokenTTL:      12 * time.Hour,
			SweepInterval: time.Minute,
		},
		Events: EventsConfig{
			Queue: "advisor.interactions",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the TOML file at ConfigFilePath, then
// applies ADVISOR_* environment overrides, then fills unset secrets from
// the secrets file. The result is validated.
func Load() (Config, error) {
	return loadWith(newFileBackend(ConfigFilePath()), fileSecrets{path: SecretsFilePath()})
}

func loadFromPath(path string, secrets secretStore) (Config, error) {
	return loadWith(newFileBackend(path), secrets)
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	applySecrets(&cfg, secrets)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applySecrets fills secrets not set in the environment from the store.
func applySecrets(cfg *Config, store secretStore) {
	if store == nil {
		return
	}
	for _, s := range specs {
		if !s.secret || s.secretName == "" {
			continue
		}
		if cur, _ := s.extract(*cfg).(string); cur != "" {
			continue
		}
		if v, err := store.Get(s.secretName); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}

// Validate checks value ranges and backend names.
func (c Config) Validate() error {
	var errs []error
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.chunk_size must be > 0, got %d", c.Ingest.ChunkSize))
	}
	if c.Ingest.Overlap < 0 || c.Ingest.Overlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("ingest.overlap must be in [0, chunk_size), got %d", c.Ingest.Overlap))
	}
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ingest.batch_size must be > 0, got %d", c.Ingest.BatchSize))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be > 0, got %d", c.Retrieval.TopK))
	}
	errs = append(errs,
		oneOf("engine.backend", c.Engine.Backend, "ollama", "openai"),
		oneOf("generation.backend", c.Generation.Backend, "engine", "openrouter"),
		oneOf("source.backend", c.Source.Backend, "gcs", "local"),
		oneOf("cache.backend", c.Cache.Backend, "memory", "redis"),
	)
	if c.Source.Backend == "gcs" && c.Source.Bucket == "" {
		errs = append(errs, errors.New("source.bucket is required when source.backend = \"gcs\""))
	}
	if c.Generation.Backend == "openrouter" && c.Generation.OpenRouterAPIKey == "" {
		errs = append(errs, errors.New("missing required config: OpenRouter API key. "+
			"Set it via environment variable ADVISOR_OPENROUTER_API_KEY or "+SecretsFilePath()))
	}
	return errors.Join(errs...)
}

func oneOf(key, val string, allowed ...string) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), val)
}
