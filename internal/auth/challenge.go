// internal/auth/challenge.go
package auth

import (
	"crypto/rand"
	"sync"
	"time"
)

const (
	challengeLength   = 32
	challengeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// ChallengeStore issues one-shot login nonces with a bounded lifetime.
// A challenge is removed either by a successful Consume or by Sweep once it
// has outlived the TTL.
type ChallengeStore struct {
	mu         sync.Mutex
	ttl        time.Duration
	challenges map[string]time.Time
}

// NewChallengeStore returns an empty store whose entries expire after ttl.
func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	return &ChallengeStore{
		ttl:        ttl,
		challenges: make(map[string]time.Time),
	}
}

// Generate creates a fresh 32-character alphanumeric challenge and records its
// issue time. Collisions are astronomically improbable and not handled.
func (s *ChallengeStore) Generate() string {
	c := randomAlphanumeric(challengeLength)
	s.mu.Lock()
	s.challenges[c] = time.Now()
	s.mu.Unlock()
	return c
}

// Consume removes c and reports whether it was present and unexpired. Unknown
// and expired challenges are left for Sweep; a consumed one is gone for good,
// so each issued challenge backs at most one login attempt.
func (s *ChallengeStore) Consume(c string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	issued, ok := s.challenges[c]
	if !ok || time.Since(issued) >= s.ttl {
		return false
	}
	delete(s.challenges, c)
	return true
}

// Sweep drops every entry that has outlived the TTL. It is idempotent and is
// run on a fixed cadence by a background goroutine.
func (s *ChallengeStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c, issued := range s.challenges {
		if time.Since(issued) >= s.ttl {
			delete(s.challenges, c)
		}
	}
}

// randomAlphanumeric draws n characters uniformly from [A-Za-z0-9] using
// rejection sampling so no alphabet position is favored.
func randomAlphanumeric(n int) string {
	const max = byte(len(challengeAlphabet) * 4) // 248, largest multiple of 62 below 256

	out := make([]byte, 0, n)
	buf := make([]byte, 2*n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic("auth: crypto/rand unavailable: " + err.Error())
		}
		for _, b := range buf {
			if b >= max {
				continue
			}
			out = append(out, challengeAlphabet[int(b)%len(challengeAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
