package retrieval

import (
	"context"
	"fmt"
)

// Retriever combines query embedding and corpus search.
type Retriever struct {
	embedder *Embedder
	store    CorpusStore
}

// NewRetriever creates a Retriever backed by the given Embedder and CorpusStore.
func NewRetriever(embedder *Embedder, store CorpusStore) *Retriever {
	return &Retriever{embedder: embedder, store: store}
}

// Retrieve embeds the query and returns the top-K corpus rows for it. An
// embedding failure is reported as a retrieval failure.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieving: %w", err)
	}
	return r.store.Search(ctx, vec, topK)
}

// Store returns the underlying corpus store.
func (r *Retriever) Store() CorpusStore {
	return r.store
}
