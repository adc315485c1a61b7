package privacy

import "context"

// Store defines the persistence interface for privacy settings.
// Error Contract:
// - Find returns sentinel.ErrNotFound when the user has no settings row
type Store interface {
	Find(ctx context.Context, userID string) (*Settings, error)
	Upsert(ctx context.Context, settings *Settings) error
	DeleteByUser(ctx context.Context, userID string) error
}
