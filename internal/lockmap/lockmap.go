// Package lockmap provides a bounded collection of per-key mutexes with LRU
// eviction that never removes a held mutex.
//
// The map hands out exactly one [KeyedMutex] per resource key (a voicebank ID
// or session ID) so that read-modify-write cycles on the same resource
// serialize while different resources never block each other. LRU bookkeeping
// uses an insertion-ordered map; eviction consults each mutex's held state
// before removal, and a mutex that is held (or that a goroutine is blocked
// acquiring) is never evicted, so the entry count may transiently exceed the
// configured maximum when every entry is in use.
//
// Acquisition goes through [LockMap.Lock], which validates the handle against
// the map after acquiring it: a handle evicted and replaced between lookup
// and acquisition is released and the acquisition retried, so two goroutines
// can never hold distinct mutexes for the same key. A handle obtained from
// Get but left unlocked is eligible for eviction at any point.
package lockmap

import (
	"fmt"
	"sync"
	"sync/atomic"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// KeyedMutex is a mutex handle owned by a [LockMap]. Its held state is
// externally observable so the map's eviction can respect in-flight use.
type KeyedMutex struct {
	mu sync.Mutex

	// users counts the holder plus any goroutines blocked in Lock. Counting
	// waiters keeps a contended mutex pinned in the map until everyone
	// queued on it has passed through.
	users atomic.Int64
}

// Lock acquires the mutex.
func (m *KeyedMutex) Lock() {
	m.users.Add(1)
	m.mu.Lock()
}

// Unlock releases the mutex. Unlocking an unlocked KeyedMutex panics, same
// as sync.Mutex.
func (m *KeyedMutex) Unlock() {
	m.mu.Unlock()
	m.users.Add(-1)
}

// Held reports whether the mutex is currently locked or being acquired.
func (m *KeyedMutex) Held() bool {
	return m.users.Load() > 0
}

// LockMap is a bounded map from resource key to [KeyedMutex] with LRU
// eviction. All methods are safe for concurrent use.
type LockMap struct {
	mu      sync.Mutex
	maxSize int
	entries *orderedmap.OrderedMap[string, *KeyedMutex]
}

// New returns a LockMap bounded to maxSize entries. Fails if maxSize < 1.
func New(maxSize int) (*LockMap, error) {
	if maxSize < 1 {
		return nil, fmt.Errorf("lockmap: max size must be at least 1, got %d", maxSize)
	}
	return &LockMap{
		maxSize: maxSize,
		entries: orderedmap.New[string, *KeyedMutex](),
	}, nil
}

// Get returns the mutex for key, creating it if absent. The entry is marked
// most-recently-used; insertion triggers eviction of least-recently-used
// unheld entries. Get never fails.
//
// The returned handle may be evicted before the caller locks it; use
// [LockMap.Lock] to acquire, and Get for inspection.
func (l *LockMap) Get(key string) *KeyedMutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	if m, ok := l.entries.Get(key); ok {
		_ = l.entries.MoveToBack(key)
		return m
	}

	m := &KeyedMutex{}
	l.entries.Set(key, m)
	l.evict()
	return m
}

// Lock acquires the mutex for key and returns the held handle. After the
// acquisition it re-checks that the handle is still the map's entry for key:
// eviction may have removed it while it was unheld, in which case the map
// either re-inserts the now-held handle or, when a fresh mutex already took
// the key, releases the stale one and retries on the current handle. Callers
// release with Unlock on the returned handle.
func (l *LockMap) Lock(key string) *KeyedMutex {
	for {
		m := l.Get(key)
		m.Lock()
		if l.reinstate(key, m) {
			return m
		}
		m.Unlock()
	}
}

// reinstate confirms m is still the entry for key, re-inserting it when the
// key was evicted outright. Reports false when a different handle owns the
// key, meaning the caller locked a stale mutex.
func (l *LockMap) reinstate(key string, m *KeyedMutex) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cur, ok := l.entries.Get(key)
	if !ok {
		l.entries.Set(key, m)
		l.evict()
		return true
	}
	return cur == m
}

// Discard removes the entry for key if it exists and is not currently held.
// A no-op otherwise, including when key is absent. Use it to reclaim memory
// for a resource that will never be referenced again.
func (l *LockMap) Discard(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.entries.Get(key)
	if !ok || m.Held() {
		return
	}
	l.entries.Delete(key)
}

// Len returns the current entry count. It may transiently exceed the
// configured maximum while every entry is held.
func (l *LockMap) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.entries.Len()
}

// evict removes unheld entries from least- to most-recently-used until the
// entry count is within the bound. It stops early when only held entries
// remain; a held lock is always released eventually, at which point a later
// insertion evicts it. Callers must hold l.mu.
func (l *LockMap) evict() {
	pair := l.entries.Oldest()
	for pair != nil && l.entries.Len() > l.maxSize {
		next := pair.Next()
		if !pair.Value.Held() {
			l.entries.Delete(pair.Key)
		}
		pair = next
	}
}
