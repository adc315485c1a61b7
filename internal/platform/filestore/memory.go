package filestore

import (
	"context"
	"sync"

	"prepguard/internal/sentinel"
)

// InMemoryStore keeps artifacts in memory for tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{files: make(map[string][]byte)}
}

func (s *InMemoryStore) Write(_ context.Context, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.files[name] = cp
	return nil
}

func (s *InMemoryStore) Read(_ context.Context, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.files[name]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *InMemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.files, name)
	return nil
}

// Len reports the number of stored artifacts.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}
