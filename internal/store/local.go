// internal/store/local.go
package store

import (
	"sync"
	"time"
)

// NonceStore remembers which nonces have already been accepted so a
// token cannot be replayed inside its freshness window. Entries are
// dropped once they age past the retention window, since the freshness
// check rejects them on its own after that.
type NonceStore struct {
	seen      map[[32]byte]time.Time
	retention time.Duration
	mu        sync.Mutex
}

func NewNonceStore(retention time.Duration) *NonceStore {
	return &NonceStore{
		seen:      make(map[[32]byte]time.Time),
		retention: retention,
	}
}

// MarkUsed records a nonce. It returns false if the nonce was already
// recorded, which makes it usable directly as a replay-rejecting
// predicate.
func (s *NonceStore) MarkUsed(nonce [32]byte) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweep(now)

	if _, ok := s.seen[nonce]; ok {
		return false
	}
	s.seen[nonce] = now
	return true
}

// Len reports how many nonces are currently retained.
func (s *NonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func (s *NonceStore) sweep(now time.Time) {
	for nonce, at := range s.seen {
		if now.Sub(at) > s.retention {
			delete(s.seen, nonce)
		}
	}
}
