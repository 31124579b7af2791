// Package source fetches raw external records by reference.
package source

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound indicates that no record exists under the reference.
var ErrNotFound = errors.New("record not found")

// Fetcher returns the raw bytes of an external record.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// MemoryFetcher serves records from an in-process map.
type MemoryFetcher struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemoryFetcher creates an empty MemoryFetcher.
func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{records: make(map[string][]byte)}
}

// Put stores a copy of data under ref.
func (m *MemoryFetcher) Put(ref string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[ref] = append([]byte(nil), data...)
}

// Delete removes the record under ref.
func (m *MemoryFetcher) Delete(ref string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, ref)
}

func (m *MemoryFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.records[ref]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}
