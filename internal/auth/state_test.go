package auth

import (
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/songcrate/internal/shared"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestStateStore(t *testing.T) {
	t.Run("Issue", func(t *testing.T) {
		s := NewStateStore(nil)
		token, err := s.Issue("user-1")
		if err != nil {
			t.Fatalf("issue failed: %v", err)
		}
		raw, err := base64.RawURLEncoding.DecodeString(token)
		if err != nil {
			t.Fatalf("token is not url-safe base64: %v", err)
		}
		if len(raw) < 32 {
			t.Errorf("expected at least 256 bits, got %d bytes", len(raw))
		}

		other, _ := s.Issue("user-1")
		if other == token {
			t.Error("tokens should be unique")
		}
		if s.Len() != 2 {
			t.Errorf("expected 2 entries, got %d", s.Len())
		}
	})

	t.Run("Never Issued", func(t *testing.T) {
		s := NewStateStore(nil)
		if _, err := s.Consume("forged"); !errors.Is(err, shared.ErrStateUnknown) {
			t.Errorf("expected ErrStateUnknown, got %v", err)
		}
		if _, err := s.Consume(""); !errors.Is(err, shared.ErrStateUnknown) {
			t.Errorf("expected ErrStateUnknown for empty token, got %v", err)
		}
	})

	t.Run("Single Use", func(t *testing.T) {
		s := NewStateStore(nil)
		token, _ := s.Issue("user-1")

		owner, err := s.Consume(token)
		if err != nil || owner != "user-1" {
			t.Fatalf("first consume: got %q, %v", owner, err)
		}
		if _, err := s.Consume(token); !errors.Is(err, shared.ErrStateUnknown) {
			t.Errorf("second consume: expected ErrStateUnknown, got %v", err)
		}
	})

	t.Run("Expired", func(t *testing.T) {
		clock := newFakeClock()
		s := NewStateStore(clock.Now)
		token, _ := s.Issue("user-1")

		clock.Advance(StateTTL + time.Second)
		if _, err := s.Consume(token); !errors.Is(err, shared.ErrStateExpired) {
			t.Errorf("expected ErrStateExpired, got %v", err)
		}
		if s.Len() != 0 {
			t.Error("expired entry should still be removed")
		}
		if _, err := s.Consume(token); !errors.Is(err, shared.ErrStateUnknown) {
			t.Errorf("expected ErrStateUnknown after expiry, got %v", err)
		}
	})

	t.Run("At TTL Boundary", func(t *testing.T) {
		clock := newFakeClock()
		s := NewStateStore(clock.Now)
		token, _ := s.Issue("user-1")

		clock.Advance(StateTTL)
		if _, err := s.Consume(token); err != nil {
			t.Errorf("expected token valid at exactly the TTL, got %v", err)
		}
	})

	t.Run("Concurrent Consume", func(t *testing.T) {
		s := NewStateStore(nil)
		token, _ := s.Issue("user-1")

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := s.Consume(token); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		if wins.Load() != 1 {
			t.Errorf("expected exactly one successful consume, got %d", wins.Load())
		}
	})
}
