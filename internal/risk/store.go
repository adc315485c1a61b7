package risk

import (
	"context"
	"time"
)

// Store persists tripped usage patterns.
type Store interface {
	Save(ctx context.Context, pattern *UsagePattern) error
	ListByUserSince(ctx context.Context, userID string, since time.Time) ([]UsagePattern, error)
	// ListFlagged returns flagged, not-yet-reviewed patterns, oldest first.
	ListFlagged(ctx context.Context, limit int) ([]UsagePattern, error)
	// MarkReviewed returns sentinel.ErrNotFound for an unknown pattern id.
	MarkReviewed(ctx context.Context, patternID string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
