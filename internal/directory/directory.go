// Package directory abstracts the account system that owns user rows.
// The engine only needs existence checks, tier lookups, and the final
// root-row delete at the end of an account erasure.
package directory

import (
	"context"
	"sync"

	"prepguard/internal/sentinel"
)

// Tier is a subscription level used for usage ceilings.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// User is the slice of the account record this engine sees.
type User struct {
	ID    string
	Email string
	Tier  Tier
}

// UserDirectory is implemented by the account system.
type UserDirectory interface {
	Exists(ctx context.Context, userID string) (bool, error)
	// Lookup returns the profile slice for data exports.
	Lookup(ctx context.Context, userID string) (*User, error)
	Tier(ctx context.Context, userID string) (Tier, error)
	// DeleteUser removes the root user row. Callers must have deleted
	// all dependent data first.
	DeleteUser(ctx context.Context, userID string) error
}

// InMemoryDirectory backs tests and local wiring; production deployments
// point at the real account service.
type InMemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewInMemoryDirectory() *InMemoryDirectory {
	return &InMemoryDirectory{users: make(map[string]User)}
}

func (d *InMemoryDirectory) Add(user User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if user.Tier == "" {
		user.Tier = TierFree
	}
	d.users[user.ID] = user
}

func (d *InMemoryDirectory) Exists(_ context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok, nil
}

func (d *InMemoryDirectory) Lookup(_ context.Context, userID string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &user, nil
}

func (d *InMemoryDirectory) Tier(_ context.Context, userID string) (Tier, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[userID]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return user.Tier, nil
}

func (d *InMemoryDirectory) DeleteUser(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[userID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(d.users, userID)
	return nil
}
