package keymanager

import (
	"context"
	"sync"

	"prepguard/internal/sentinel"
)

type purposeKey struct {
	userID  string
	purpose Purpose
}

// InMemoryStore keeps key records in memory for tests. Inactive records are
// retained so rotation history stays observable.
type InMemoryStore struct {
	mu      sync.RWMutex
	active  map[purposeKey]*KeyRecord
	history []*KeyRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{active: make(map[purposeKey]*KeyRecord)}
}

func (s *InMemoryStore) FindActive(_ context.Context, userID string, purpose Purpose) (*KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.active[purposeKey{userID, purpose}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copyRecord := *record
	return &copyRecord, nil
}

func (s *InMemoryStore) ReplaceActive(_ context.Context, record *KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := purposeKey{record.UserID, record.Purpose}
	if prev, ok := s.active[key]; ok {
		prev.IsActive = false
		s.history = append(s.history, prev)
	}
	copyRecord := *record
	copyRecord.IsActive = true
	s.active[key] = &copyRecord
	return nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.active {
		if key.userID == userID {
			delete(s.active, key)
		}
	}
	var kept []*KeyRecord
	for _, record := range s.history {
		if record.UserID != userID {
			kept = append(kept, record)
		}
	}
	s.history = kept
	return nil
}

// InactiveCount reports retained rotated-out records for a user.
func (s *InMemoryStore) InactiveCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, record := range s.history {
		if record.UserID == userID {
			count++
		}
	}
	return count
}
