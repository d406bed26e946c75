package retrieval

import (
	"context"
	"sync"
)

var _ CorpusStore = (*MemoryStore)(nil)

// MemoryStore is an in-process CorpusStore. It backs dry-run builds and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	rows []CorpusRow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Rebuild(_ context.Context, rows []CorpusRow) error {
	if _, err := validateRows(rows); err != nil {
		return err
	}
	cp := copyRows(rows)

	m.mu.Lock()
	m.rows = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Search(_ context.Context, vector []float64, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, ErrInvalidTopK
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.rows) == 0 {
		return nil, ErrEmptyCorpus
	}

	best := newTopK(topK)
	for i, r := range m.rows {
		if len(r.Embedding) != len(vector) {
			return nil, dimensionError(r.ChunkID, len(r.Embedding), len(vector))
		}
		best.offer(candidate{id: r.ChunkID, score: dotProduct(vector, r.Embedding), index: i})
	}

	winners := best.sorted()
	results := make([]Result, len(winners))
	for i, c := range winners {
		results[i] = Result{ChunkID: c.id, ChunkText: m.rows[c.index].ChunkText, Score: c.score}
	}
	return results, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows), nil
}

func (m *MemoryStore) ExportAll(_ context.Context) ([]CorpusRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyRows(m.rows), nil
}

func copyRows(rows []CorpusRow) []CorpusRow {
	cp := make([]CorpusRow, len(rows))
	for i, r := range rows {
		cp[i] = CorpusRow{ChunkID: r.ChunkID, ChunkText: r.ChunkText, Embedding: append([]float64(nil), r.Embedding...)}
	}
	return cp
}
