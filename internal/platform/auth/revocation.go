package auth

import (
	"sync"
	"time"
)

// TokenRevocationStore remembers token ids that were logged out before they
// expired. Entries are dropped once the token would have expired anyway.
type TokenRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> token expiry
	now     func() time.Time
}

func NewTokenRevocationStore() *TokenRevocationStore {
	return &TokenRevocationStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *TokenRevocationStore) Revoke(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[jti] = expiresAt
}

func (s *TokenRevocationStore) IsRevoked(jti string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[jti]
	return ok
}

func (s *TokenRevocationStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Cleanup removes entries whose tokens have expired and returns how many
// were removed. The job scheduler calls it periodically.
func (s *TokenRevocationStore) Cleanup() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for jti, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, jti)
			removed++
		}
	}
	return removed
}
