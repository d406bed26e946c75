package retrieval

import (
	"context"
	"fmt"

	"github.com/meheroob/stremlit-agentic-ai/internal/engine"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// DefaultBatchSize is the number of texts sent per embedding request.
const DefaultBatchSize = 20

// maxConcurrentBatches bounds in-flight embedding requests.
const maxConcurrentBatches = 4

// Embedder wraps an Engine to generate text embeddings.
type Embedder struct {
	engine    engine.Engine
	model     string
	batchSize int
	limiter   *rate.Limiter
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model, batchSize: DefaultBatchSize}
}

// WithBatchSize sets the number of texts per request. Non-positive sizes make
// EmbedBatch fail with ErrInvalidBatchSize.
func (e *Embedder) WithBatchSize(n int) *Embedder {
	e.batchSize = n
	return e
}

// WithRateLimit throttles batch requests to rps per second. Zero or negative
// disables throttling.
func (e *Embedder) WithRateLimit(rps float64) *Embedder {
	if rps <= 0 {
		e.limiter = nil
		return e
	}
	e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return e
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.call(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	return vecs[0], nil
}

// EmbedBatch returns one vector per text, in input order. Texts are sent in
// consecutive batches of at most the configured batch size. If any batch
// fails the whole call fails and no vectors are returned.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	if e.batchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}
	results := make([][]float64, len(texts))
	if len(texts) == 0 {
		return results, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.call(gCtx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embedding batch %d-%d: %w", start, end-1, err)
			}
			copy(results[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// call issues one engine request and checks the engine returned exactly one
// vector per input.
func (e *Embedder) call(ctx context.Context, texts []string) ([][]float64, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	vecs, err := e.engine.Embed(ctx, e.model, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("engine returned %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}
