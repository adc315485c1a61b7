package sync

import (
	"sync"
)

// KeyedMutex provides per-key advisory locking using sharded mutexes.
// A retention sweep and a GDPR delete touching the same user's rows must not
// run concurrently; both take the lock for that user ID. Sharding bounds
// memory while keeping contention between unrelated users low.
type KeyedMutex struct {
	shards [64]sync.Mutex
}

// NewKeyedMutex creates a KeyedMutex with 64 shards.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the lock for the given key's shard.
// Empty keys default to shard 0.
func (m *KeyedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the lock for the given key's shard.
func (m *KeyedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// TryLock attempts to acquire the lock without blocking.
// Background sweeps use this to skip users with an in-flight erasure instead
// of stalling the whole batch.
func (m *KeyedMutex) TryLock(key string) bool {
	return m.shards[m.shardFor(key)].TryLock()
}

func (m *KeyedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % uint32(len(m.shards)))
}

// hashString provides a simple hash for shard selection.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
