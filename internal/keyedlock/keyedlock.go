// Package keyedlock provides per-key advisory locking used to realize a
// single-threaded cooperative concurrency model on top of Go's natively
// multi-threaded runtime: every mutation treated as one uninterruptible
// step holds its key's lock for the full duration of the operation,
// including any outbound port call.
package keyedlock

import "sync"

// Map is a set of independent mutexes keyed by an arbitrary string,
// created on first use and never removed (keys are bounded by the number
// of distinct owners/deployments, not by request volume).
type Map struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns an empty keyed-lock set.
func New() *Map {
	return &Map{locks: make(map[string]*sync.Mutex)}
}

func (m *Map) lockFor(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Lock blocks until key's lock is held.
func (m *Map) Lock(key string) {
	m.lockFor(key).Lock()
}

// Unlock releases key's lock.
func (m *Map) Unlock(key string) {
	m.lockFor(key).Unlock()
}

// TryLock acquires key's lock without blocking, reporting success. The
// scheduler (C9) uses this to skip records a request handler currently
// holds, rather than stalling a tick on contention.
func (m *Map) TryLock(key string) bool {
	return m.lockFor(key).TryLock()
}

// WithLock runs fn while holding key's lock.
func (m *Map) WithLock(key string, fn func()) {
	m.Lock(key)
	defer m.Unlock(key)
	fn()
}
