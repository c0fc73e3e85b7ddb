package cache

import (
	"context"
	"sync"
)

// MemoryStore keeps records in process memory. Used by tests and when no
// cache directory is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, documentID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	rec.Content = append([]byte(nil), rec.Content...)
	return &rec, nil
}

func (s *MemoryStore) Put(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *rec
	stored.Content = append([]byte(nil), rec.Content...)
	s.records[rec.DocumentID] = stored
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
