package retention

import (
	"context"
	"sort"
	"sync"

	"prepguard/internal/sentinel"
	"prepguard/internal/sessiondata"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	policies map[sessiondata.DataType]*Policy
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{policies: make(map[sessiondata.DataType]*Policy)}
}

func (s *InMemoryStore) Upsert(_ context.Context, policy *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *policy
	if existing, ok := s.policies[policy.DataType]; ok {
		dup.ID = existing.ID
		dup.CreatedAt = existing.CreatedAt
	}
	s.policies[policy.DataType] = &dup
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, dataType sessiondata.DataType) (*Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.policies[dataType]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	dup := *policy
	return &dup, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Policy, 0, len(s.policies))
	for _, policy := range s.policies {
		out = append(out, *policy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataType < out[j].DataType })
	return out, nil
}

func (s *InMemoryStore) Delete(_ context.Context, dataType sessiondata.DataType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[dataType]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.policies, dataType)
	return nil
}
