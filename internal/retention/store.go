package retention

import (
	"context"

	"prepguard/internal/sessiondata"
)

// Store persists retention policies, keyed by data type.
type Store interface {
	// Upsert inserts or replaces the policy for its data type, preserving
	// ID and CreatedAt of an existing row.
	Upsert(ctx context.Context, policy *Policy) error
	// Find returns sentinel.ErrNotFound when no policy exists for the type.
	Find(ctx context.Context, dataType sessiondata.DataType) (*Policy, error)
	List(ctx context.Context) ([]Policy, error)
	Delete(ctx context.Context, dataType sessiondata.DataType) error
}
