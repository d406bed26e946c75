package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrEmptyCorpus       = errors.New("corpus is empty")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrInvalidTopK       = errors.New("top_k must be positive")
	ErrDuplicateChunkID  = errors.New("duplicate chunk id")
	ErrInvalidBatchSize  = errors.New("batch size must be positive")
)

// CorpusRow is one embedded chunk of the reference corpus.
type CorpusRow struct {
	ChunkID   string
	ChunkText string
	Embedding []float64
}

// Result is a corpus row ranked against a query vector.
type Result struct {
	ChunkID   string
	ChunkText string
	Score     float64
}

// CorpusStore holds the embedded corpus and answers exhaustive top-K queries.
//
// Scores are raw dot products. Embedding models used here return unit-length
// vectors, for which the dot product equals cosine similarity; for other models
// longer vectors score higher.
type CorpusStore interface {
	// Rebuild replaces the whole corpus with rows. Readers observe either the
	// old corpus or the new one, never a mix.
	Rebuild(ctx context.Context, rows []CorpusRow) error

	// Search returns at most topK rows ordered by score descending, ties broken
	// by chunk ID ascending.
	Search(ctx context.Context, vector []float64, topK int) ([]Result, error)

	// Count returns the number of rows in the corpus.
	Count(ctx context.Context) (int, error)

	// ExportAll returns every row in insertion order.
	ExportAll(ctx context.Context) ([]CorpusRow, error)
}

// validateRows checks the invariants Rebuild relies on and returns the common
// dimensionality (0 for an empty row set).
func validateRows(rows []CorpusRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	dims := len(rows[0].Embedding)
	seen := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.ChunkID]; dup {
			return 0, fmt.Errorf("%w: %q", ErrDuplicateChunkID, r.ChunkID)
		}
		seen[r.ChunkID] = struct{}{}
		if len(r.Embedding) != dims {
			return 0, fmt.Errorf("%w: chunk %s has %d dimensions, expected %d", ErrDimensionMismatch, r.ChunkID, len(r.Embedding), dims)
		}
	}
	return dims, nil
}

func dimensionError(chunkID string, got, query int) error {
	return fmt.Errorf("%w: chunk %s has %d dimensions, query has %d", ErrDimensionMismatch, chunkID, got, query)
}

// dotProduct assumes len(a) == len(b); callers check dimensions first.
func dotProduct(a, b []float64) float64 {
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// compareChunkIDs orders chunk IDs numerically when both are base-10 integers
// ("2" before "10") and lexicographically otherwise.
func compareChunkIDs(a, b string) int {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		}
		// "01" and "1" parse equal; fall through to keep the order total.
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// ranksBefore reports whether a belongs ahead of b in search results.
func ranksBefore(a, b candidate) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	return compareChunkIDs(a.id, b.id) < 0
}

type candidate struct {
	id    string
	score float64
	index int // position in the scan
	text  string
}

// candidateHeap is a min-heap whose root is the weakest of the current top-K.
type candidateHeap []candidate

func (h candidateHeap) Len() int            { return len(h) }
func (h candidateHeap) Less(i, j int) bool  { return ranksBefore(h[j], h[i]) }
func (h candidateHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
