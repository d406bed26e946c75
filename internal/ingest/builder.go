// Package ingest builds the embedded reference corpus from source documents
// and runs rebuilds from the job queue.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/meheroob/stremlit-agentic-ai/internal/chunker"
	"github.com/meheroob/stremlit-agentic-ai/internal/retrieval"
	"github.com/meheroob/stremlit-agentic-ai/internal/source"
	"github.com/meheroob/stremlit-agentic-ai/internal/storage"
)

// ErrNoContent is returned when the source yields no text to index. The
// stored corpus is left untouched.
var ErrNoContent = errors.New("no text extracted from source documents")

// DocumentReader reads the documents under a prefix.
type DocumentReader interface {
	ReadAll(ctx context.Context, prefix string) ([]source.Document, error)
}

// BatchEmbedder embeds texts preserving order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// BuildRecorder persists build history.
type BuildRecorder interface {
	RecordBuild(b storage.CorpusBuild) error
}

// Options configures a Builder.
type Options struct {
	Prefix    string
	ChunkSize int
	Overlap   int
}

// BuildStats summarises a completed build.
type BuildStats struct {
	ID         string
	Prefix     string
	Documents  int
	Chunks     int
	Dimensions int
	Duration   time.Duration
}

// Builder runs the offline pipeline: read, join, chunk, embed, replace.
type Builder struct {
	reader   DocumentReader
	embedder BatchEmbedder
	corpus   retrieval.CorpusStore
	builds   BuildRecorder
	opts     Options
	logger   *slog.Logger
}

// NewBuilder creates a Builder. builds may be nil for dry runs.
func NewBuilder(reader DocumentReader, embedder BatchEmbedder, corpus retrieval.CorpusStore, builds BuildRecorder, opts Options) *Builder {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = chunker.DefaultChunkSize
		if opts.Overlap == 0 {
			opts.Overlap = chunker.DefaultOverlap
		}
	}
	return &Builder{
		reader:   reader,
		embedder: embedder,
		corpus:   corpus,
		builds:   builds,
		opts:     opts,
		logger:   slog.Default(),
	}
}

// Build rebuilds the corpus from documents under prefix, or the configured
// prefix when empty.
func (b *Builder) Build(ctx context.Context, prefix string) (BuildStats, error) {
	if prefix == "" {
		prefix = b.opts.Prefix
	}
	started := time.Now().UTC()
	stats := BuildStats{ID: uuid.New().String(), Prefix: prefix}

	docs, err := b.reader.ReadAll(ctx, prefix)
	if err != nil {
		return stats, fmt.Errorf("reading documents: %w", err)
	}
	stats.Documents = len(docs)

	chunks, err := chunker.ChunkText(source.JoinPages(docs), b.opts.ChunkSize, b.opts.Overlap)
	if err != nil {
		return stats, fmt.Errorf("chunking: %w", err)
	}
	if len(chunks) == 0 {
		return stats, ErrNoContent
	}
	b.logger.Info("corpus chunked", "prefix", prefix, "documents", len(docs), "chunks", len(chunks))

	vecs, err := b.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return stats, fmt.Errorf("embedding chunks: %w", err)
	}

	rows := make([]retrieval.CorpusRow, len(chunks))
	for i, text := range chunks {
		rows[i] = retrieval.CorpusRow{ChunkID: strconv.Itoa(i), ChunkText: text, Embedding: vecs[i]}
	}
	if err := b.corpus.Rebuild(ctx, rows); err != nil {
		return stats, fmt.Errorf("replacing corpus: %w", err)
	}

	stats.Chunks = len(rows)
	stats.Dimensions = len(rows[0].Embedding)
	stats.Duration = time.Since(started)

	if b.builds != nil {
		err := b.builds.RecordBuild(storage.CorpusBuild{
			ID:         stats.ID,
			StartedAt:  started,
			FinishedAt: time.Now().UTC(),
			Prefix:     prefix,
			Documents:  stats.Documents,
			Chunks:     stats.Chunks,
			Dimensions: stats.Dimensions,
		})
		if err != nil {
			// The corpus is already replaced; only history is missing.
			b.logger.Warn("recording corpus build failed", "build_id", stats.ID, "error", err)
		}
	}

	b.logger.Info("corpus rebuilt", "build_id", stats.ID, "chunks", stats.Chunks,
		"dimensions", stats.Dimensions, "duration", stats.Duration)
	return stats, nil
}
