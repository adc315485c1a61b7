package erasure

import (
	"context"
	"sort"
	"sync"
	"time"

	"prepguard/internal/sentinel"
)

type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*Request
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{requests: make(map[string]*Request)}
}

func (s *InMemoryStore) Create(_ context.Context, request *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[request.ID] = copyRequest(request)
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, id string) (*Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	request, ok := s.requests[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRequest(request), nil
}

func (s *InMemoryStore) Update(_ context.Context, request *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[request.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.requests[request.ID] = copyRequest(request)
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Request, 0)
	for _, request := range s.requests {
		if request.UserID == userID {
			out = append(out, *copyRequest(request))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemoryStore) ClaimPending(_ context.Context) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oldest *Request
	for _, request := range s.requests {
		if request.Status != StatusPending {
			continue
		}
		if oldest == nil || request.CreatedAt.Before(oldest.CreatedAt) {
			oldest = request
		}
	}
	if oldest == nil {
		return nil, sentinel.ErrNotFound
	}
	oldest.Status = StatusProcessing
	return copyRequest(oldest), nil
}

func (s *InMemoryStore) ListExpiredExports(_ context.Context, now time.Time) ([]Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Request, 0)
	for _, request := range s.requests {
		if request.RequestType != RequestExport || request.Status != StatusCompleted {
			continue
		}
		if request.FilePath == "" || request.ExpiresAt == nil || request.ExpiresAt.After(now) {
			continue
		}
		out = append(out, *copyRequest(request))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func copyRequest(r *Request) *Request {
	dup := *r
	dup.Domains = append([]Domain(nil), r.Domains...)
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		dup.ExpiresAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		dup.CompletedAt = &t
	}
	return &dup
}
