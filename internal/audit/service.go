package audit

import (
	"context"
	"time"

	dErrors "prepguard/pkg/domain-errors"
)

const defaultPageSize = 50

// Service is the audit trail facade used by the rest of the engine. Writes go
// through the fail-open Publisher; reads and cleanup hit the store directly.
type Service struct {
	store     Store
	publisher *Publisher
}

func NewService(store Store, publisher *Publisher) *Service {
	return &Service{store: store, publisher: publisher}
}

// Log appends one entry, fail-open.
func (s *Service) Log(ctx context.Context, entry Entry) {
	s.publisher.Emit(ctx, entry)
}

// Domain wrappers. These are ergonomic aliases that stamp the resource type;
// they share the entry shape and the fail-open write path.

func (s *Service) LogAuth(ctx context.Context, entry Entry) {
	entry.ResourceType = ResourceAuth
	s.Log(ctx, entry)
}

func (s *Service) LogAudio(ctx context.Context, entry Entry) {
	entry.ResourceType = ResourceAudio
	s.Log(ctx, entry)
}

func (s *Service) LogTranscription(ctx context.Context, entry Entry) {
	entry.ResourceType = ResourceTranscription
	s.Log(ctx, entry)
}

func (s *Service) LogSession(ctx context.Context, entry Entry) {
	entry.ResourceType = ResourceSession
	s.Log(ctx, entry)
}

func (s *Service) LogPrivacy(ctx context.Context, entry Entry) {
	entry.ResourceType = ResourcePrivacy
	s.Log(ctx, entry)
}

func (s *Service) LogDataManagement(ctx context.Context, entry Entry) {
	entry.ResourceType = ResourceDataManagement
	s.Log(ctx, entry)
}

func (s *Service) LogSecurity(ctx context.Context, entry Entry) {
	entry.ResourceType = ResourceSecurity
	s.Log(ctx, entry)
}

// GetUserAuditLogs returns a user's entries newest-first.
func (s *Service) GetUserAuditLogs(ctx context.Context, userID string, limit, offset int) ([]Entry, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user ID required")
	}
	entries, err := s.store.ListByUser(ctx, userID, normalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list audit entries")
	}
	return entries, nil
}

// GetSessionAuditLogs returns a session's entries newest-first.
func (s *Service) GetSessionAuditLogs(ctx context.Context, sessionID string, limit, offset int) ([]Entry, error) {
	if sessionID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "session ID required")
	}
	entries, err := s.store.ListBySession(ctx, sessionID, normalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list audit entries")
	}
	return entries, nil
}

// GetSecurityLogs returns entries with a security action or success=false.
func (s *Service) GetSecurityLogs(ctx context.Context, limit, offset int) ([]Entry, error) {
	entries, err := s.store.ListSecurity(ctx, normalizeLimit(limit), max(offset, 0))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list security entries")
	}
	return entries, nil
}

// GetEntriesByActionSince returns every entry for one action at or after
// the given time, used for compliance reporting over the trail.
func (s *Service) GetEntriesByActionSince(ctx context.Context, action Action, since time.Time) ([]Entry, error) {
	entries, err := s.store.ListByActionSince(ctx, action, since)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeStorage, "failed to list audit entries")
	}
	return entries, nil
}

// LastActivityAt returns the time of the user's most recent entry, zero
// when there is none.
func (s *Service) LastActivityAt(ctx context.Context, userID string) (time.Time, error) {
	ts, err := s.store.LastTimestampByUser(ctx, userID)
	if err != nil {
		return time.Time{}, dErrors.Wrap(err, dErrors.CodeStorage, "failed to read last activity")
	}
	return ts, nil
}

// CountUserEntries reports how many entries the user has.
func (s *Service) CountUserEntries(ctx context.Context, userID string) (int, error) {
	count, err := s.store.CountByUser(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to count audit entries")
	}
	return count, nil
}

// DeleteUserLogs removes every entry for one user, used only by account
// erasure.
func (s *Service) DeleteUserLogs(ctx context.Context, userID string) (int64, error) {
	deleted, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to delete user audit entries")
	}
	return deleted, nil
}

// CleanupOldLogs deletes entries older than the given number of days and
// returns how many were removed.
func (s *Service) CleanupOldLogs(ctx context.Context, days int) (int64, error) {
	if days < 1 {
		return 0, dErrors.New(dErrors.CodeValidation, "retention must be at least 1 day")
	}
	cutoff := time.Now().AddDate(0, 0, -days)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeStorage, "failed to delete old audit entries")
	}
	return deleted, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	return limit
}
