package session

import (
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Session is a set of attributes tied to one client. Sessions are created by
// a Store and are safe for concurrent use.
type Session struct {
	id        string
	createdAt time.Time

	// lastAccessed holds Unix nanoseconds, or evictedMark once the session
	// has expired. Touch and eviction both CAS it, so exactly one wins.
	lastAccessed atomic.Int64

	mu    sync.RWMutex
	attrs map[string]any
}

func newSession(id string, now time.Time) *Session {
	s := &Session{
		id:        id,
		createdAt: now,
		attrs:     make(map[string]any),
	}
	s.lastAccessed.Store(now.UnixNano())
	return s
}

// ID returns the session identifier sent to the client.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastAccessed returns the time of the last successful lookup. It is
// meaningless once the session has been evicted or invalidated.
func (s *Session) LastAccessed() time.Time {
	return time.Unix(0, s.lastAccessed.Load())
}

// Get returns the attribute stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.attrs[key]
	return v, ok
}

func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

func (s *Session) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, key)
}

// Update replaces the attribute under key with fn's result while holding the
// session lock, so read-modify-write sequences do not interleave.
func (s *Session) Update(key string, fn func(old any, ok bool) any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.attrs[key]
	v := fn(old, ok)
	s.attrs[key] = v
	return v
}

// Clear removes every attribute.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.attrs)
}

// Keys returns the attribute names in sorted order.
func (s *Session) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

const evictedMark = math.MinInt64

// tryTouch refreshes the access time unless the session is already idle past
// timeout or evicted.
func (s *Session) tryTouch(now time.Time, timeout time.Duration) bool {
	for {
		last := s.lastAccessed.Load()
		if last == evictedMark || now.UnixNano()-last > int64(timeout) {
			return false
		}
		if now.UnixNano() <= last {
			return true
		}
		if s.lastAccessed.CompareAndSwap(last, now.UnixNano()) {
			return true
		}
	}
}

// tryEvict marks the session evicted if it is idle past timeout. It reports
// false when the session was touched in the meantime or is already evicted.
func (s *Session) tryEvict(now time.Time, timeout time.Duration) bool {
	for {
		last := s.lastAccessed.Load()
		if last == evictedMark || now.UnixNano()-last <= int64(timeout) {
			return false
		}
		if s.lastAccessed.CompareAndSwap(last, evictedMark) {
			return true
		}
	}
}

func (s *Session) evicted() bool {
	return s.lastAccessed.Load() == evictedMark
}
