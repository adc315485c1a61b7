package consent

import (
	"context"
	"sync"

	"prepguard/internal/sentinel"
)

type recordKey struct {
	userID  string
	typ     Type
	version string
}

// InMemoryStore stores consent records in memory for tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[recordKey]*Record
}

// NewInMemoryStore constructs an empty in-memory consent store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[recordKey]*Record)}
}

func (s *InMemoryStore) Upsert(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := recordKey{record.UserID, record.Type, record.Version}
	if existing, ok := s.records[key]; ok {
		record.ID = existing.ID
		record.CreatedAt = existing.CreatedAt
	}
	copyRecord := *record
	s.records[key] = &copyRecord
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, userID string, consentType Type, version string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordKey{userID, consentType, version}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copyRecord := *record
	return &copyRecord, nil
}

func (s *InMemoryStore) ListByUserVersion(_ context.Context, userID, version string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Record
	for key, record := range s.records {
		if key.userID == userID && key.version == version {
			copyRecord := *record
			out = append(out, &copyRecord)
		}
	}
	return out, nil
}

func (s *InMemoryStore) StatisticsByVersion(_ context.Context, version string) (map[Type]TypeStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[Type]TypeStatistics)
	for key, record := range s.records {
		if key.version != version {
			continue
		}
		current := stats[key.typ]
		if record.Granted {
			current.Granted++
		} else {
			current.Revoked++
		}
		stats[key.typ] = current
	}
	return stats, nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.records {
		if key.userID == userID {
			delete(s.records, key)
		}
	}
	return nil
}
