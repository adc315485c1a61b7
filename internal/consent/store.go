package consent

import "context"

// Store defines the persistence interface for consent records.
// Error Contract:
//   - Find returns sentinel.ErrNotFound when no record exists for the tuple
//   - Upsert is keyed by the natural key (userID, type, version); concurrent
//     writers are last-writer-wins, which callers accept
type Store interface {
	Upsert(ctx context.Context, record *Record) error
	Find(ctx context.Context, userID string, consentType Type, version string) (*Record, error)
	ListByUserVersion(ctx context.Context, userID, version string) ([]*Record, error)
	StatisticsByVersion(ctx context.Context, version string) (map[Type]TypeStatistics, error)
	DeleteByUser(ctx context.Context, userID string) error
}
