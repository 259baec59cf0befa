// Package lock serializes state-changing work per participant.
package lock

import (
	"context"
	"sync"
)

// ParticipantLocks is a keyed mutex: one lock per participant code. A second
// acquirer for the same key blocks until the first releases; different keys
// never contend.
//
// Locks are registered when a session is created and forgotten when it is
// deleted. Acquiring an unregistered key registers it on the fly.
//
// The table lives in one process's memory. It serializes cohort's own
// mutations within that process only; it does not exclude another cohort
// process or the page server handling submissions. Writers that must hold
// across processes re-read the participant under the lock and guard the
// store update itself (see store.StartProgress).
type ParticipantLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewParticipantLocks creates an empty lock table.
func NewParticipantLocks() *ParticipantLocks {
	return &ParticipantLocks{locks: make(map[string]chan struct{})}
}

// Register creates the lock records for keys. Existing records are kept.
func (m *ParticipantLocks) Register(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if _, ok := m.locks[k]; !ok {
			m.locks[k] = make(chan struct{}, 1)
		}
	}
}

// Forget drops the lock records for keys. Callers must not hold them.
func (m *ParticipantLocks) Forget(keys ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.locks, k)
	}
}

// Registered reports whether key has a lock record.
func (m *ParticipantLocks) Registered(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[key]
	return ok
}

// Lock blocks until the key's lock is held or ctx is done.
func (m *ParticipantLocks) Lock(ctx context.Context, key string) error {
	ch := m.get(key)
	select {
	case ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unlock releases the key's lock. Unlocking a key that is not held panics,
// like sync.Mutex.
func (m *ParticipantLocks) Unlock(key string) {
	ch := m.get(key)
	select {
	case <-ch:
	default:
		panic("lock: unlock of unlocked participant " + key)
	}
}

// With runs fn while holding key's lock. The lock is released on every exit
// path, including a panic in fn.
func (m *ParticipantLocks) With(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if err := m.Lock(ctx, key); err != nil {
		return err
	}
	defer m.Unlock(key)
	return fn(ctx)
}

func (m *ParticipantLocks) get(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ch, ok := m.locks[key]; ok {
		return ch
	}
	ch := make(chan struct{}, 1)
	m.locks[key] = ch
	return ch
}
