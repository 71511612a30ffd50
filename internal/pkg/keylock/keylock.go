// Package keylock provides a sharded mutex keyed by user ID.
//
// Per-user state (OTP timestamp, subscription set) must be serialized per
// user without a global lock. Keys hash onto a fixed set of shards, so two
// different users rarely contend and the lock table never grows.
package keylock

import "sync"

const defaultShards = 64

// KeyLock serializes operations that share a key.
type KeyLock struct {
	shards []sync.Mutex
}

// New returns a KeyLock with the given shard count. Non-positive counts fall
// back to a default.
func New(shards int) *KeyLock {
	if shards < 1 {
		shards = defaultShards
	}
	return &KeyLock{shards: make([]sync.Mutex, shards)}
}

// Lock acquires the shard owning key.
func (l *KeyLock) Lock(key int64) {
	l.shards[l.index(key)].Lock()
}

// Unlock releases the shard owning key.
func (l *KeyLock) Unlock(key int64) {
	l.shards[l.index(key)].Unlock()
}

// index maps via the uint64 image of the key; negating math.MinInt64 would
// overflow and leave a negative remainder.
func (l *KeyLock) index(key int64) int {
	return int(uint64(key) % uint64(len(l.shards)))
}
