// Package cache memoises corpus retrieval for the lifetime of a chat session.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/meheroob/stremlit-agentic-ai/internal/retrieval"
)

// Retriever is the retrieval call being memoised.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.Result, error)
}

// Entry is a cached retrieval hit. Scores are not kept.
type Entry struct {
	ChunkID   string `json:"chunk_id"`
	ChunkText string `json:"chunk_text"`
}

// Backend stores the entries of one session's cache.
type Backend interface {
	Get(ctx context.Context, key string) ([]Entry, bool, error)
	Set(ctx context.Context, key string, entries []Entry) error
	Clear(ctx context.Context) error
}

// BackendFactory creates the Backend for a new session.
type BackendFactory func(sessionID string) Backend

// Options configures a RetrievalCache.
type Options struct {
	// KeyIncludesTopK makes top_k part of the cache key. When false, a query
	// cached with one top_k is served for any other top_k.
	KeyIncludesTopK bool
	Logger          *slog.Logger
}

// Stats counts cache lookups.
type Stats struct {
	Hits   int
	Misses int
}

// RetrievalCache is a per-session memo of query -> retrieved chunks. Entries
// never expire while the session lives and are not invalidated when the
// corpus is rebuilt.
type RetrievalCache struct {
	retriever Retriever
	backend   Backend
	opts      Options
	logger    *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a RetrievalCache in front of r.
func New(r Retriever, b Backend, opts Options) *RetrievalCache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if b == nil {
		b = NewMemoryBackend()
	}
	return &RetrievalCache{retriever: r, backend: b, opts: opts, logger: logger}
}

// NormalizeKey folds a query to its cache key: trimmed and lower-cased.
func NormalizeKey(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

func (c *RetrievalCache) key(query string, topK int) string {
	k := NormalizeKey(query)
	if c.opts.KeyIncludesTopK {
		return fmt.Sprintf("%d:%s", topK, k)
	}
	return k
}

// Get returns the cached entries for query, calling the retriever on a miss.
// Retriever errors are returned and nothing is cached. Backend errors are
// logged and the lookup falls through to the retriever.
func (c *RetrievalCache) Get(ctx context.Context, query string, topK int) ([]Entry, error) {
	key := c.key(query, topK)

	entries, ok, err := c.backend.Get(ctx, key)
	if err != nil {
		c.logger.Warn("retrieval cache read failed, retrieving directly", "error", err)
	} else if ok {
		c.record(true)
		return entries, nil
	}
	c.record(false)

	results, err := c.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return nil, err
	}

	entries = make([]Entry, len(results))
	for i, r := range results {
		entries[i] = Entry{ChunkID: r.ChunkID, ChunkText: r.ChunkText}
	}
	if err := c.backend.Set(ctx, key, entries); err != nil {
		c.logger.Warn("retrieval cache write failed", "error", err)
	}
	return entries, nil
}

func (c *RetrievalCache) record(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.stats.Hits++
	} else {
		c.stats.Misses++
	}
}

// Stats returns the hit and miss counts so far.
func (c *RetrievalCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Clear drops every cached entry. Called when the session ends.
func (c *RetrievalCache) Clear(ctx context.Context) error {
	return c.backend.Clear(ctx)
}
