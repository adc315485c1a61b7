package sessiondata

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryStore backs tests and local wiring. DeleteByUser mirrors the
// transactional behavior of the Postgres store: failures are surfaced
// before any row is removed, so a failed call leaves every domain intact.
type InMemoryStore struct {
	mu             sync.RWMutex
	sessions       []Session
	interactions   []Interaction
	metrics        []Metric
	audio          []AudioRecording
	transcriptions []Transcription
	practice       []PracticeRecord
	analytics      []AnalyticsEvent
	failures       map[DataType]error
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{failures: make(map[DataType]error)}
}

// FailOn makes every delete touching typ return err. Used by tests to
// simulate a mid-transaction storage failure.
func (s *InMemoryStore) FailOn(typ DataType, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[typ] = err
}

func (s *InMemoryStore) AddSession(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, sess)
	return nil
}

func (s *InMemoryStore) AddInteraction(_ context.Context, i Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions = append(s.interactions, i)
	return nil
}

func (s *InMemoryStore) AddMetric(_ context.Context, m Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
	return nil
}

func (s *InMemoryStore) AddAudio(_ context.Context, a AudioRecording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, a)
	return nil
}

func (s *InMemoryStore) AddTranscription(_ context.Context, t Transcription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcriptions = append(s.transcriptions, t)
	return nil
}

func (s *InMemoryStore) AddPractice(_ context.Context, p PracticeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.practice = append(s.practice, p)
	return nil
}

func (s *InMemoryStore) AddAnalyticsEvent(_ context.Context, e AnalyticsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analytics = append(s.analytics, e)
	return nil
}

func (s *InMemoryStore) CountSessionsSince(_ context.Context, userID string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sess := range s.sessions {
		if sess.UserID == userID && !sess.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) AudioMinutesSince(_ context.Context, userID string, since time.Time) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var seconds float64
	for _, a := range s.audio {
		if a.UserID == userID && !a.CreatedAt.Before(since) {
			seconds += a.DurationSeconds
		}
	}
	return seconds / 60, nil
}

func (s *InMemoryStore) ListSessionsByUser(_ context.Context, userID string) ([]Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByUser(s.sessions, userID, func(v Session) string { return v.UserID }), nil
}

func (s *InMemoryStore) ListInteractionsByUser(_ context.Context, userID string) ([]Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByUser(s.interactions, userID, func(v Interaction) string { return v.UserID }), nil
}

func (s *InMemoryStore) ListMetricsByUser(_ context.Context, userID string) ([]Metric, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByUser(s.metrics, userID, func(v Metric) string { return v.UserID }), nil
}

func (s *InMemoryStore) ListAudioByUser(_ context.Context, userID string) ([]AudioRecording, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByUser(s.audio, userID, func(v AudioRecording) string { return v.UserID }), nil
}

func (s *InMemoryStore) ListTranscriptionsByUser(_ context.Context, userID string) ([]Transcription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByUser(s.transcriptions, userID, func(v Transcription) string { return v.UserID }), nil
}

func (s *InMemoryStore) ListPracticeByUser(_ context.Context, userID string) ([]PracticeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByUser(s.practice, userID, func(v PracticeRecord) string { return v.UserID }), nil
}

func (s *InMemoryStore) ListAnalyticsByUser(_ context.Context, userID string) ([]AnalyticsEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterByUser(s.analytics, userID, func(v AnalyticsEvent) string { return v.UserID }), nil
}

func (s *InMemoryStore) CountsByUser(_ context.Context, userID string) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countsLocked(userID), nil
}

func (s *InMemoryStore) UserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	collect := func(userID string) {
		seen[userID] = struct{}{}
	}
	for _, v := range s.sessions {
		collect(v.UserID)
	}
	for _, v := range s.audio {
		collect(v.UserID)
	}
	for _, v := range s.transcriptions {
		collect(v.UserID)
	}
	for _, v := range s.practice {
		collect(v.UserID)
	}
	for _, v := range s.analytics {
		collect(v.UserID)
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *InMemoryStore) DeleteOlderThan(_ context.Context, typ DataType, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[typ]; err != nil {
		return 0, err
	}
	return s.deleteLocked(typ, func(userID string, createdAt time.Time) bool {
		return createdAt.Before(cutoff)
	}), nil
}

func (s *InMemoryStore) DeleteByUserOlderThan(_ context.Context, typ DataType, userID string, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[typ]; err != nil {
		return 0, err
	}
	return s.deleteLocked(typ, func(owner string, createdAt time.Time) bool {
		return owner == userID && createdAt.Before(cutoff)
	}), nil
}

func (s *InMemoryStore) DeleteByUser(_ context.Context, userID string, types []DataType) (Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// surface any failure before touching a row, all-or-nothing
	for _, typ := range types {
		if err := s.failures[typ]; err != nil {
			return Counts{}, err
		}
	}
	before := s.countsLocked(userID)
	for _, typ := range types {
		s.deleteLocked(typ, func(owner string, _ time.Time) bool {
			return owner == userID
		})
	}
	after := s.countsLocked(userID)
	return Counts{
		Sessions:       before.Sessions - after.Sessions,
		Interactions:   before.Interactions - after.Interactions,
		Metrics:        before.Metrics - after.Metrics,
		Audio:          before.Audio - after.Audio,
		Transcriptions: before.Transcriptions - after.Transcriptions,
		Practice:       before.Practice - after.Practice,
		Analytics:      before.Analytics - after.Analytics,
	}, nil
}

func (s *InMemoryStore) countsLocked(userID string) Counts {
	var c Counts
	for _, v := range s.sessions {
		if v.UserID == userID {
			c.Sessions++
		}
	}
	for _, v := range s.interactions {
		if v.UserID == userID {
			c.Interactions++
		}
	}
	for _, v := range s.metrics {
		if v.UserID == userID {
			c.Metrics++
		}
	}
	for _, v := range s.audio {
		if v.UserID == userID {
			c.Audio++
		}
	}
	for _, v := range s.transcriptions {
		if v.UserID == userID {
			c.Transcriptions++
		}
	}
	for _, v := range s.practice {
		if v.UserID == userID {
			c.Practice++
		}
	}
	for _, v := range s.analytics {
		if v.UserID == userID {
			c.Analytics++
		}
	}
	return c
}

// deleteLocked removes rows matching the predicate from one domain and
// returns how many rows went, children included for sessions.
func (s *InMemoryStore) deleteLocked(typ DataType, match func(userID string, createdAt time.Time) bool) int64 {
	switch typ {
	case TypeAudio:
		var n int64
		s.audio, n = keep(s.audio, func(v AudioRecording) bool { return !match(v.UserID, v.CreatedAt) })
		return n
	case TypeTranscription:
		var n int64
		s.transcriptions, n = keep(s.transcriptions, func(v Transcription) bool { return !match(v.UserID, v.CreatedAt) })
		return n
	case TypePractice:
		var n int64
		s.practice, n = keep(s.practice, func(v PracticeRecord) bool { return !match(v.UserID, v.CreatedAt) })
		return n
	case TypeAnalytics:
		var n int64
		s.analytics, n = keep(s.analytics, func(v AnalyticsEvent) bool { return !match(v.UserID, v.CreatedAt) })
		return n
	case TypeSession:
		doomed := make(map[string]struct{})
		for _, sess := range s.sessions {
			if match(sess.UserID, sess.CreatedAt) {
				doomed[sess.ID] = struct{}{}
			}
		}
		var ni, nm, ns int64
		s.interactions, ni = keep(s.interactions, func(v Interaction) bool {
			_, gone := doomed[v.SessionID]
			return !gone
		})
		s.metrics, nm = keep(s.metrics, func(v Metric) bool {
			_, gone := doomed[v.SessionID]
			return !gone
		})
		s.sessions, ns = keep(s.sessions, func(v Session) bool {
			_, gone := doomed[v.ID]
			return !gone
		})
		return ni + nm + ns
	}
	return 0
}

func filterByUser[T any](rows []T, userID string, owner func(T) string) []T {
	out := make([]T, 0)
	for _, v := range rows {
		if owner(v) == userID {
			out = append(out, v)
		}
	}
	return out
}

func keep[T any](rows []T, pred func(T) bool) ([]T, int64) {
	kept := rows[:0]
	var removed int64
	for _, v := range rows {
		if pred(v) {
			kept = append(kept, v)
		} else {
			removed++
		}
	}
	return kept, removed
}
