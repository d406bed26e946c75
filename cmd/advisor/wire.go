package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/api/option"

	"github.com/meheroob/stremlit-agentic-ai/internal/cache"
	"github.com/meheroob/stremlit-agentic-ai/internal/composer"
	"github.com/meheroob/stremlit-agentic-ai/internal/config"
	"github.com/meheroob/stremlit-agentic-ai/internal/customer"
	"github.com/meheroob/stremlit-agentic-ai/internal/engine"
	"github.com/meheroob/stremlit-agentic-ai/internal/events"
	"github.com/meheroob/stremlit-agentic-ai/internal/ingest"
	"github.com/meheroob/stremlit-agentic-ai/internal/intent"
	"github.com/meheroob/stremlit-agentic-ai/internal/pipeline"
	"github.com/meheroob/stremlit-agentic-ai/internal/proxy"
	"github.com/meheroob/stremlit-agentic-ai/internal/retrieval"
	"github.com/meheroob/stremlit-agentic-ai/internal/session"
	"github.com/meheroob/stremlit-agentic-ai/internal/source"
	"github.com/meheroob/stremlit-agentic-ai/internal/storage"
)

// core holds the components shared by the server, the offline build and the
// MCP server.
type core struct {
	cfg       config.Config
	store     *storage.Store
	engine    engine.Engine
	embedder  *retrieval.Embedder
	corpus    retrieval.CorpusStore
	retriever *retrieval.Retriever
	blobs     source.BlobStore
	reader    *source.Reader
	builder   *ingest.Builder

	closers []func() error
}

func openCore(ctx context.Context, cfg config.Config) (*core, error) {
	c := &core{cfg: cfg}

	eng, err := engine.Detect(engine.DetectConfig{
		Backend: cfg.Engine.Backend,
		BaseURL: cfg.Engine.BaseURL,
		APIKey:  cfg.Engine.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	c.engine = eng

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	c.store = store
	c.closers = append(c.closers, store.Close)

	blobs, err := openBlobStore(ctx, cfg.Source)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.blobs = blobs

	c.embedder = retrieval.NewEmbedder(eng, cfg.Engine.EmbedModel).
		WithBatchSize(cfg.Ingest.BatchSize).
		WithRateLimit(cfg.Ingest.RateLimit)
	c.corpus = retrieval.NewSQLiteStore(store.DB())
	c.retriever = retrieval.NewRetriever(c.embedder, c.corpus)
	c.reader = source.NewReader(blobs, slog.Default())
	c.builder = ingest.NewBuilder(c.reader, c.embedder, c.corpus, store, ingest.Options{
		Prefix:    cfg.Source.Prefix,
		ChunkSize: cfg.Ingest.ChunkSize,
		Overlap:   cfg.Ingest.Overlap,
	})
	return c, nil
}

// Close releases resources in reverse order of acquisition.
func (c *core) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func openBlobStore(ctx context.Context, cfg config.SourceConfig) (source.BlobStore, error) {
	switch cfg.Backend {
	case "gcs":
		var opts []option.ClientOption
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		s, err := source.NewGCSStore(ctx, cfg.Bucket, opts...)
		if err != nil {
			return nil, fmt.Errorf("opening gcs source: %w", err)
		}
		return s, nil
	case "", "local":
		return source.NewFilesystemStore(cfg.Root), nil
	default:
		return nil, fmt.Errorf("unknown source backend %q", cfg.Backend)
	}
}

// assistantStack is everything the chat API needs beyond the core.
type assistantStack struct {
	directory *customer.Directory
	sessions  *session.Manager
	assistant *pipeline.Assistant
}

func (c *core) openAssistant(ctx context.Context) (*assistantStack, error) {
	cfg := c.cfg

	secret, err := config.GetJWTSecret()
	if err != nil {
		return nil, fmt.Errorf("getting session signing key: %w", err)
	}

	backends := cache.MemoryFactory()
	if cfg.Cache.Backend == "redis" {
		client, err := cache.NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			slog.Warn("redis unavailable, using in-memory session caches", "addr", cfg.Cache.RedisAddr, "error", err)
		} else {
			c.closers = append(c.closers, client.Close)
			backends = cache.RedisFactory(client, cfg.Session.IdleTTL)
		}
	}

	sessions := session.NewManager(secret, c.retriever, session.Options{
		IdleTTL:  cfg.Session.IdleTTL,
		TokenTTL: cfg.Session.TokenTTL,
		Backends: backends,
		Cache:    cache.Options{KeyIncludesTopK: cfg.Cache.KeyIncludesTopK},
	})

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Events.AMQPURL != "" {
		p, err := events.DialAMQP(ctx, cfg.Events.AMQPURL, cfg.Events.Queue)
		if err != nil {
			slog.Warn("event broker unavailable, interaction events disabled", "error", err)
		} else {
			c.closers = append(c.closers, p.Close)
			publisher = p
		}
	}

	var completer pipeline.Completer
	switch cfg.Generation.Backend {
	case "openrouter":
		completer = proxy.NewClient(cfg.Generation.OpenRouterAPIKey, cfg.Generation.OpenRouterModel)
	default:
		completer = pipeline.EngineCompleter{Engine: c.engine, Model: cfg.Engine.ChatModel}
	}

	directory := customer.NewDirectory(c.blobs, customer.Files{
		AllUsers:  cfg.Customers.AllUsersFile,
		Pensions:  cfg.Customers.PensionsFile,
		Insurance: cfg.Customers.InsuranceFile,
	}, cfg.Customers.TTL)

	assistant := pipeline.NewAssistant(
		intent.NewClassifier(c.engine, cfg.Engine.ChatModel),
		completer,
		composer.New(cfg.Retrieval.MaxContextTokens),
		c.store,
		publisher,
		cfg.Retrieval.TopK,
	)

	return &assistantStack{directory: directory, sessions: sessions, assistant: assistant}, nil
}
