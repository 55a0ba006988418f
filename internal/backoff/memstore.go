package backoff

import (
	"context"
	"sync"
)

type MemStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string]Record)}
}

func (s *MemStore) Get(_ context.Context, kind string) (Record, bool, error) {
	s.mu.RLock()
	rec, ok := s.records[kind]
	s.mu.RUnlock()
	return rec, ok, nil
}

func (s *MemStore) Put(_ context.Context, rec Record) error {
	s.mu.Lock()
	s.records[rec.Kind] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Delete(_ context.Context, kind string) error {
	s.mu.Lock()
	delete(s.records, kind)
	s.mu.Unlock()
	return nil
}
