package auth

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/songcrate/internal/models"
	"github.com/desertthunder/songcrate/internal/services"
	"github.com/desertthunder/songcrate/internal/shared"
)

type fakeProvider struct {
	token    *services.TokenResponse
	err      error
	codes    []string
	refresh  *services.TokenResponse
	refreshs []string
}

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) RedirectURI() string { return "http://127.0.0.1:3001/auth/spotify/callback" }

func (p *fakeProvider) ExchangeCode(_ context.Context, code, _ string) (*services.TokenResponse, error) {
	p.codes = append(p.codes, code)
	return p.token, p.err
}

func (p *fakeProvider) RefreshToken(_ context.Context, refresh string) (*services.TokenResponse, error) {
	p.refreshs = append(p.refreshs, refresh)
	return p.refresh, p.err
}

type memoryCredentials struct {
	mu    sync.Mutex
	creds map[string]models.Credential
	err   error
}

func newMemoryCredentials() *memoryCredentials {
	return &memoryCredentials{creds: map[string]models.Credential{}}
}

func (m *memoryCredentials) UpsertCredential(_ context.Context, c models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.creds[c.OwnerID] = c
	return nil
}

func (m *memoryCredentials) GetCredential(_ context.Context, owner string) (*models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.creds[owner]
	if !ok {
		return nil, shared.ErrCredentialNotFound
	}
	return &c, nil
}

func (m *memoryCredentials) DeleteCredential(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, owner)
	return nil
}

type handshakeFixture struct {
	h        *Handshake
	provider *fakeProvider
	store    *memoryCredentials
	clock    *fakeClock
}

func newHandshakeFixture(t *testing.T) *handshakeFixture {
	t.Helper()
	f := &handshakeFixture{
		provider: &fakeProvider{token: &services.TokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			ExpiresIn:    3600,
			Scope:        "playlist-read-private",
		}},
		store: newMemoryCredentials(),
		clock: newFakeClock(),
	}
	h, err := NewHandshake(HandshakeOpts{
		Provider: f.provider,
		Store:    f.store,
		Key:      testKey(9),
		Now:      f.clock.Now,
		Logger:   shared.NewLogger(&bytes.Buffer{}),
	})
	if err != nil {
		t.Fatalf("failed to create handshake: %v", err)
	}
	f.h = h
	return f
}

func stateFrom(t *testing.T, authURL string) string {
	t.Helper()
	u, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("bad url: %v", err)
	}
	return u.Query().Get("state")
}

func TestNewHandshake(t *testing.T) {
	_, err := NewHandshake(HandshakeOpts{Provider: &fakeProvider{}, Store: newMemoryCredentials(), Key: []byte("short")})
	if !errors.Is(err, shared.ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey, got %v", err)
	}

	_, err = NewHandshake(HandshakeOpts{Key: testKey(1)})
	if !errors.Is(err, shared.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestHandshake(t *testing.T) {
	ctx := context.Background()

	t.Run("Authorize Does Not Contact Provider", func(t *testing.T) {
		f := newHandshakeFixture(t)
		u, err := f.h.Authorize("user-1")
		if err != nil {
			t.Fatalf("authorize failed: %v", err)
		}
		if stateFrom(t, u) == "" {
			t.Error("expected state in authorize url")
		}
		if len(f.provider.codes) != 0 {
			t.Error("authorize should not exchange anything")
		}

		if _, err := f.h.Authorize(""); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Callback Stores Encrypted Tokens", func(t *testing.T) {
		f := newHandshakeFixture(t)
		u, _ := f.h.Authorize("user-1")

		owner, err := f.h.Callback(ctx, "code-1", stateFrom(t, u))
		if err != nil {
			t.Fatalf("callback failed: %v", err)
		}
		if owner != "user-1" {
			t.Errorf("expected owner user-1, got %s", owner)
		}

		cred := f.store.creds["user-1"]
		if bytes.Contains(cred.AccessEncrypted, []byte("access-1")) {
			t.Error("access token stored in plaintext")
		}
		if got, _ := Decrypt(testKey(9), cred.AccessEncrypted); got != "access-1" {
			t.Errorf("access token mismatch: %q", got)
		}
		if got, _ := Decrypt(testKey(9), cred.RefreshEncrypted); got != "refresh-1" {
			t.Errorf("refresh token mismatch: %q", got)
		}
		if want := f.clock.Now().Add(time.Hour); !cred.ExpiresAt.Equal(want) {
			t.Errorf("expires_at = %v, want %v", cred.ExpiresAt, want)
		}
		if cred.Scope != "playlist-read-private" {
			t.Errorf("unexpected scope %q", cred.Scope)
		}
	})

	t.Run("Callback Rejects Unknown State", func(t *testing.T) {
		f := newHandshakeFixture(t)
		_, err := f.h.Callback(ctx, "code", "forged")
		if !errors.Is(err, shared.ErrStateUnknown) {
			t.Errorf("expected ErrStateUnknown, got %v", err)
		}
		if len(f.provider.codes) != 0 {
			t.Error("code must not be exchanged for an unknown state")
		}
		if len(f.store.creds) != 0 {
			t.Error("nothing should be stored")
		}
	})

	t.Run("Callback Rejects Replay", func(t *testing.T) {
		f := newHandshakeFixture(t)
		u, _ := f.h.Authorize("user-1")
		state := stateFrom(t, u)

		if _, err := f.h.Callback(ctx, "code", state); err != nil {
			t.Fatalf("first callback failed: %v", err)
		}
		if _, err := f.h.Callback(ctx, "code", state); !errors.Is(err, shared.ErrStateUnknown) {
			t.Errorf("expected ErrStateUnknown on replay, got %v", err)
		}
	})

	t.Run("Callback Rejects Expired State", func(t *testing.T) {
		f := newHandshakeFixture(t)
		u, _ := f.h.Authorize("user-1")
		f.clock.Advance(StateTTL + time.Second)

		if _, err := f.h.Callback(ctx, "code", stateFrom(t, u)); !errors.Is(err, shared.ErrStateExpired) {
			t.Errorf("expected ErrStateExpired, got %v", err)
		}
		if len(f.provider.codes) != 0 {
			t.Error("code must not be exchanged for an expired state")
		}
	})

	t.Run("Callback Missing Code", func(t *testing.T) {
		f := newHandshakeFixture(t)
		u, _ := f.h.Authorize("user-1")
		if _, err := f.h.Callback(ctx, "", stateFrom(t, u)); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("Callback Exchange Failure", func(t *testing.T) {
		f := newHandshakeFixture(t)
		f.provider.err = &services.APIError{Kind: services.KindAuthFailed, Status: 401}
		u, _ := f.h.Authorize("user-1")

		_, err := f.h.Callback(ctx, "code", stateFrom(t, u))
		if !errors.Is(err, shared.ErrAuthFailed) {
			t.Errorf("expected ErrAuthFailed, got %v", err)
		}
	})

	t.Run("Callback Without Refresh Token", func(t *testing.T) {
		f := newHandshakeFixture(t)
		f.provider.token = &services.TokenResponse{AccessToken: "a", ExpiresIn: 60}
		u, _ := f.h.Authorize("user-1")

		if _, err := f.h.Callback(ctx, "code", stateFrom(t, u)); err != nil {
			t.Fatalf("callback failed: %v", err)
		}
		if got, err := Decrypt(testKey(9), f.store.creds["user-1"].RefreshEncrypted); err != nil || got != "" {
			t.Errorf("expected empty refresh token, got %q, %v", got, err)
		}
	})

	t.Run("Callback Overwrites Previous Credential", func(t *testing.T) {
		f := newHandshakeFixture(t)
		u, _ := f.h.Authorize("user-1")
		f.h.Callback(ctx, "code", stateFrom(t, u))

		f.provider.token = &services.TokenResponse{AccessToken: "access-2", RefreshToken: "refresh-2", ExpiresIn: 60}
		u, _ = f.h.Authorize("user-1")
		if _, err := f.h.Callback(ctx, "code", stateFrom(t, u)); err != nil {
			t.Fatalf("second callback failed: %v", err)
		}

		token, err := f.h.AccessToken(ctx, "user-1")
		if err != nil || token != "access-2" {
			t.Errorf("expected replaced token, got %q, %v", token, err)
		}
	})

	t.Run("Status", func(t *testing.T) {
		f := newHandshakeFixture(t)

		connected, err := f.h.Status(ctx, "user-1")
		if err != nil || connected {
			t.Errorf("expected disconnected, got %v, %v", connected, err)
		}

		u, _ := f.h.Authorize("user-1")
		f.h.Callback(ctx, "code", stateFrom(t, u))

		if connected, _ := f.h.Status(ctx, "user-1"); !connected {
			t.Error("expected connected")
		}

		f.clock.Advance(time.Hour)
		if connected, _ := f.h.Status(ctx, "user-1"); connected {
			t.Error("expires_at must be strictly in the future")
		}
	})

	t.Run("AccessToken", func(t *testing.T) {
		f := newHandshakeFixture(t)

		if _, err := f.h.AccessToken(ctx, "user-1"); !errors.Is(err, shared.ErrAccessDenied) {
			t.Errorf("expected ErrAccessDenied without credential, got %v", err)
		}

		u, _ := f.h.Authorize("user-1")
		f.h.Callback(ctx, "code", stateFrom(t, u))

		token, err := f.h.AccessToken(ctx, "user-1")
		if err != nil || token != "access-1" {
			t.Errorf("expected access-1, got %q, %v", token, err)
		}

		t.Run("Tampered", func(t *testing.T) {
			cred := f.store.creds["user-1"]
			cred.AccessEncrypted = append([]byte(nil), cred.AccessEncrypted...)
			cred.AccessEncrypted[NonceSize] ^= 0x01
			f.store.creds["user-1"] = cred

			_, err := f.h.AccessToken(ctx, "user-1")
			if !errors.Is(err, shared.ErrAccessDenied) || !errors.Is(err, shared.ErrDecrypt) {
				t.Errorf("expected access denied decrypt error, got %v", err)
			}
		})

		t.Run("Expired", func(t *testing.T) {
			f.clock.Advance(2 * time.Hour)
			if _, err := f.h.AccessToken(ctx, "user-1"); !errors.Is(err, shared.ErrTokenExpired) {
				t.Errorf("expected ErrTokenExpired, got %v", err)
			}
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		f := newHandshakeFixture(t)
		u, _ := f.h.Authorize("user-1")
		f.h.Callback(ctx, "code", stateFrom(t, u))

		f.provider.refresh = &services.TokenResponse{AccessToken: "access-3", ExpiresIn: 120}
		f.clock.Advance(time.Minute)

		expiresAt, err := f.h.Refresh(ctx, "user-1")
		if err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
		if want := f.clock.Now().Add(2 * time.Minute); !expiresAt.Equal(want) {
			t.Errorf("expires_at = %v, want %v", expiresAt, want)
		}
		if len(f.provider.refreshs) != 1 || f.provider.refreshs[0] != "refresh-1" {
			t.Errorf("unexpected refresh calls %v", f.provider.refreshs)
		}

		cred := f.store.creds["user-1"]
		if got, _ := Decrypt(testKey(9), cred.RefreshEncrypted); got != "refresh-1" {
			t.Errorf("refresh token should be kept when not rotated, got %q", got)
		}
		if cred.Scope != "playlist-read-private" {
			t.Errorf("scope should be kept, got %q", cred.Scope)
		}

		if _, err := f.h.Refresh(ctx, "nobody"); !errors.Is(err, shared.ErrAccessDenied) {
			t.Errorf("expected ErrAccessDenied, got %v", err)
		}
	})

	t.Run("Disconnect", func(t *testing.T) {
		f := newHandshakeFixture(t)
		u, _ := f.h.Authorize("user-1")
		f.h.Callback(ctx, "code", stateFrom(t, u))

		if err := f.h.Disconnect(ctx, "user-1"); err != nil {
			t.Fatalf("disconnect failed: %v", err)
		}
		if connected, _ := f.h.Status(ctx, "user-1"); connected {
			t.Error("expected disconnected")
		}
	})
}
