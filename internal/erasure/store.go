package erasure

import (
	"context"
	"time"
)

// Store persists export/delete requests.
type Store interface {
	Create(ctx context.Context, request *Request) error
	// Find returns sentinel.ErrNotFound for an unknown request id.
	Find(ctx context.Context, id string) (*Request, error)
	Update(ctx context.Context, request *Request) error
	ListByUser(ctx context.Context, userID string) ([]Request, error)
	// ClaimPending atomically moves the oldest pending request to
	// processing and returns it, or sentinel.ErrNotFound when the queue is
	// empty. At most one worker can claim a given request.
	ClaimPending(ctx context.Context) (*Request, error)
	// ListExpiredExports returns completed exports whose artifact expiry
	// has passed and whose file path is still set.
	ListExpiredExports(ctx context.Context, now time.Time) ([]Request, error)
}
