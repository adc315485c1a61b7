package keymanager

import "context"

// Store defines the persistence interface for key records.
// Error Contract:
//   - FindActive returns sentinel.ErrNotFound when no active record exists
//   - ReplaceActive atomically deactivates any current active record for the
//     record's (userID, purpose) and persists the new one as active, so a crash
//     can never leave zero active keys for a purpose that had one
type Store interface {
	FindActive(ctx context.Context, userID string, purpose Purpose) (*KeyRecord, error)
	ReplaceActive(ctx context.Context, record *KeyRecord) error
	DeleteByUser(ctx context.Context, userID string) error
}
