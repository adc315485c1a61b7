package privacy

import (
	"context"
	"sync"

	"prepguard/internal/sentinel"
)

// InMemoryStore stores privacy settings in memory for tests.
type InMemoryStore struct {
	mu       sync.RWMutex
	settings map[string]*Settings
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{settings: make(map[string]*Settings)}
}

func (s *InMemoryStore) Find(_ context.Context, userID string) (*Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	settings, ok := s.settings[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copySettings := *settings
	return &copySettings, nil
}

func (s *InMemoryStore) Upsert(_ context.Context, settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copySettings := *settings
	s.settings[settings.UserID] = &copySettings
	return nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.settings, userID)
	return nil
}
