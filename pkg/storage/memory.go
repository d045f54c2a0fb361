package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStorage keeps records in process memory. Records are copied on the
// way in and out so callers cannot mutate stored state.
type MemoryStorage struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{records: make(map[string]*Record)}
}

// Store implements TokenStorage.
func (m *MemoryStorage) Store(_ context.Context, key string, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = rec.Clone()
	return nil
}

// Get implements TokenStorage.
func (m *MemoryStorage) Get(_ context.Context, key string) (*Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok || rec == nil {
		return nil, false
	}
	return rec.Clone(), true
}

// Delete implements TokenStorage.
func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

// ClearAll implements TokenStorage.
func (m *MemoryStorage) ClearAll(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*Record)
	return nil
}

// Keys returns the stored keys in sorted order.
func (m *MemoryStorage) Keys(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.records))
	for k := range m.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored records.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
