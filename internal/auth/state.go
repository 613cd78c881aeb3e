package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/songcrate/internal/shared"
)

// StateTTL is how long an issued CSRF state stays valid.
const StateTTL = 300 * time.Second

const stateBytes = 32

type stateEntry struct {
	owner    string
	issuedAt time.Time
}

// StateStore is a single-use registry of OAuth state tokens.
//
// Entries are removed on first lookup whether or not they have expired. Nothing is swept in the
// background, so an entry that is never consumed lives until the process exits.
type StateStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]stateEntry
	now     func() time.Time
}

// NewStateStore creates a store with [StateTTL]. now defaults to [time.Now].
func NewStateStore(now func() time.Time) *StateStore {
	if now == nil {
		now = time.Now
	}
	return &StateStore{
		ttl:     StateTTL,
		entries: map[string]stateEntry{},
		now:     now,
	}
}

// Issue records a fresh token for owner. The token is 256 random bits, base64url without padding.
func (s *StateStore) Issue(owner string) (string, error) {
	raw := make([]byte, stateBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("auth: generate state: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	s.mu.Lock()
	s.entries[token] = stateEntry{owner: owner, issuedAt: s.now()}
	s.mu.Unlock()

	return token, nil
}

// Consume removes token and returns its owner.
//
// Returns [shared.ErrStateUnknown] for tokens never issued or already consumed, and
// [shared.ErrStateExpired] when more than the TTL has passed since issue.
func (s *StateStore) Consume(token string) (string, error) {
	s.mu.Lock()
	entry, ok := s.entries[token]
	if ok {
		delete(s.entries, token)
	}
	s.mu.Unlock()

	if !ok {
		return "", shared.ErrStateUnknown
	}
	if s.now().Sub(entry.issuedAt) > s.ttl {
		return "", shared.ErrStateExpired
	}
	return entry.owner, nil
}

// Len reports the number of outstanding tokens.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
