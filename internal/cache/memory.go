package cache

import (
	"context"
	"sync"
)

// MemoryBackend keeps entries in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string][]Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string][]Entry)}
}

// MemoryFactory returns a BackendFactory producing independent MemoryBackends.
func MemoryFactory() BackendFactory {
	return func(string) Backend { return NewMemoryBackend() }
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]Entry(nil), e...), true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = append([]Entry(nil), entries...)
	return nil
}

func (m *MemoryBackend) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string][]Entry)
	return nil
}

// Len returns the number of cached keys.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
