package audit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore holds audit entries in memory. Used by tests and as the
// default sink when no database is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, copyEntry(entry))
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string, limit, offset int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.filter(func(e Entry) bool { return e.UserID == userID }), limit, offset), nil
}

func (s *InMemoryStore) ListBySession(_ context.Context, sessionID string, limit, offset int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.filter(func(e Entry) bool { return e.SessionID == sessionID }), limit, offset), nil
}

func (s *InMemoryStore) ListSecurity(_ context.Context, limit, offset int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.filter(func(e Entry) bool { return SecurityActions[e.Action] || !e.Success }), limit, offset), nil
}

func (s *InMemoryStore) ListByUserSince(_ context.Context, userID string, since time.Time) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(e Entry) bool { return e.UserID == userID && !e.CreatedAt.Before(since) }), nil
}

func (s *InMemoryStore) ListByActionSince(_ context.Context, action Action, since time.Time) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter(func(e Entry) bool { return e.Action == action && !e.CreatedAt.Before(since) }), nil
}

func (s *InMemoryStore) LastTimestampByUser(_ context.Context, userID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last time.Time
	for _, e := range s.entries {
		if e.UserID == userID && e.CreatedAt.After(last) {
			last = e.CreatedAt
		}
	}
	return last, nil
}

func (s *InMemoryStore) CountByUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.entries {
		if e.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []Entry
	var deleted int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []Entry
	var deleted int64
	for _, e := range s.entries {
		if e.UserID == userID {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// Len reports the total number of stored entries.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// filter returns matching entries newest-first. Callers must hold the lock.
func (s *InMemoryStore) filter(match func(Entry) bool) []Entry {
	var out []Entry
	for _, e := range s.entries {
		if match(e) {
			out = append(out, copyEntry(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func paginate(entries []Entry, limit, offset int) []Entry {
	if offset >= len(entries) {
		return nil
	}
	entries = entries[offset:]
	if limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return entries
}

// copyEntry deep-copies the details map so stored entries stay immutable.
func copyEntry(e Entry) Entry {
	if e.Details != nil {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	return e
}
