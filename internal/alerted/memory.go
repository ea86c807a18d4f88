package alerted

import (
	"context"
	"sync"
	"time"
)

// MemorySet is the in-process alerted set. Expired keys are reaped lazily
// on read and in bulk on Add.
type MemorySet struct {
	mu      sync.RWMutex
	expires map[string]time.Time
}

// NewMemorySet returns an empty in-memory alerted set.
func NewMemorySet() *MemorySet {
	return &MemorySet{expires: make(map[string]time.Time)}
}

// Contains reports whether the token is still suppressed.
func (s *MemorySet) Contains(_ context.Context, tokenKey string) bool {
	s.mu.RLock()
	exp, ok := s.expires[tokenKey]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		s.mu.Lock()
		delete(s.expires, tokenKey)
		s.mu.Unlock()
		return false
	}
	return true
}

// Add suppresses the token for ttl (DefaultTTL when ttl <= 0).
func (s *MemorySet) Add(_ context.Context, tokenKey string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, exp := range s.expires {
		if now.After(exp) {
			delete(s.expires, k)
		}
	}
	s.expires[tokenKey] = now.Add(ttl)
	return nil
}

// Len returns the number of live suppressions.
func (s *MemorySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	now := time.Now()
	for _, exp := range s.expires {
		if now.Before(exp) {
			n++
		}
	}
	return n
}
