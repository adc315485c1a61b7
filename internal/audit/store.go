package audit

import (
	"context"
	"time"
)

// Store defines the persistence interface for audit entries.
// Error Contract:
// - List methods return empty slices, never ErrNotFound, when nothing matches
// - Append returns nil on success or a wrapped error on failure
type Store interface {
	Append(ctx context.Context, entry Entry) error

	// ListByUser returns the user's entries newest-first.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]Entry, error)

	// ListBySession returns the session's entries newest-first.
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]Entry, error)

	// ListSecurity returns entries with a security action or success=false,
	// newest-first.
	ListSecurity(ctx context.Context, limit, offset int) ([]Entry, error)

	// ListByUserSince returns all of a user's entries at or after the given
	// time. Risk heuristics derive activity windows from this.
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]Entry, error)

	// ListByActionSince returns all entries for one action at or after the
	// given time, across users. Compliance reporting scans these.
	ListByActionSince(ctx context.Context, action Action, since time.Time) ([]Entry, error)

	// LastTimestampByUser returns the zero time when the user has no entries.
	LastTimestampByUser(ctx context.Context, userID string) (time.Time, error)

	// CountByUser reports the number of entries for a user.
	CountByUser(ctx context.Context, userID string) (int, error)

	// DeleteOlderThan removes entries created before the cutoff and reports
	// how many were removed.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// DeleteByUser removes all of a user's entries (account erasure only).
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
