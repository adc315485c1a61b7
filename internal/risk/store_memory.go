package risk

import (
	"context"
	"sort"
	"sync"
	"time"

	"prepguard/internal/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	patterns []*UsagePattern
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, pattern *UsagePattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, copyPattern(pattern))
	return nil
}

func (s *InMemoryStore) ListByUserSince(_ context.Context, userID string, since time.Time) ([]UsagePattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UsagePattern, 0)
	for _, p := range s.patterns {
		if p.UserID == userID && !p.CreatedAt.Before(since) {
			out = append(out, *copyPattern(p))
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListFlagged(_ context.Context, limit int) ([]UsagePattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UsagePattern, 0)
	for _, p := range s.patterns {
		if p.Flagged && !p.Reviewed {
			out = append(out, *copyPattern(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) MarkReviewed(_ context.Context, patternID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.patterns {
		if p.ID == patternID {
			p.Reviewed = true
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.patterns[:0]
	var removed int64
	for _, p := range s.patterns {
		if p.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.patterns = kept
	return removed, nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.patterns[:0]
	var removed int64
	for _, p := range s.patterns {
		if p.UserID == userID {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.patterns = kept
	return removed, nil
}

// Len reports the total stored pattern count, for tests.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.patterns)
}

func copyPattern(p *UsagePattern) *UsagePattern {
	dup := *p
	if p.PatternData != nil {
		dup.PatternData = make(map[string]any, len(p.PatternData))
		for k, v := range p.PatternData {
			dup.PatternData[k] = v
		}
	}
	return &dup
}
