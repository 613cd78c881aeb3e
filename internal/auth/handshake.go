package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songcrate/internal/models"
	"github.com/desertthunder/songcrate/internal/services"
	"github.com/desertthunder/songcrate/internal/shared"
)

// Provider is the part of the Spotify client the handshake needs.
type Provider interface {
	AuthCodeURL(state string) string
	RedirectURI() string
	ExchangeCode(ctx context.Context, code, redirectURI string) (*services.TokenResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenResponse, error)
}

// CredentialStore persists one [models.Credential] per owner.
type CredentialStore interface {
	UpsertCredential(ctx context.Context, c models.Credential) error
	// GetCredential returns [shared.ErrCredentialNotFound] when the owner has none.
	GetCredential(ctx context.Context, ownerID string) (*models.Credential, error)
	DeleteCredential(ctx context.Context, ownerID string) error
}

// HandshakeOpts configures a [Handshake].
type HandshakeOpts struct {
	Provider Provider
	Store    CredentialStore
	States   *StateStore
	Key      []byte
	Now      func() time.Time
	Logger   *log.Logger
}

// Handshake runs the authorization code flow and guards the resulting credentials.
type Handshake struct {
	provider Provider
	store    CredentialStore
	states   *StateStore
	key      []byte
	now      func() time.Time
	logger   *log.Logger
}

// NewHandshake validates opts and fills in defaults for States, Now and Logger.
func NewHandshake(opts HandshakeOpts) (*Handshake, error) {
	if opts.Provider == nil || opts.Store == nil {
		return nil, fmt.Errorf("%w: handshake requires a provider and a credential store", shared.ErrInvalidConfig)
	}
	if len(opts.Key) != KeySize {
		return nil, fmt.Errorf("%w: need %d bytes, got %d", shared.ErrInvalidKey, KeySize, len(opts.Key))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.States == nil {
		opts.States = NewStateStore(opts.Now)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	return &Handshake{
		provider: opts.Provider,
		store:    opts.Store,
		states:   opts.States,
		key:      opts.Key,
		now:      opts.Now,
		logger:   shared.WithLogger(opts.Logger, "component", "oauth"),
	}, nil
}

// Authorize issues a state token for owner and returns the provider's authorize URL.
// It does not contact the provider.
func (h *Handshake) Authorize(owner string) (string, error) {
	if owner == "" {
		return "", shared.ErrNotAuthenticated
	}
	state, err := h.states.Issue(owner)
	if err != nil {
		return "", err
	}
	return h.provider.AuthCodeURL(state), nil
}

// Callback completes the flow: the state is consumed before anything else, then the code is exchanged
// and the encrypted tokens replace whatever the owner had stored.
//
// It returns the owner the state was issued to.
func (h *Handshake) Callback(ctx context.Context, code, state string) (string, error) {
	owner, err := h.states.Consume(state)
	if err != nil {
		h.logger.Warn("rejected callback", "reason", err)
		return "", err
	}
	if code == "" {
		return "", fmt.Errorf("%w: missing authorization code", shared.ErrInvalidInput)
	}

	token, err := h.provider.ExchangeCode(ctx, code, h.provider.RedirectURI())
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}

	cred, err := h.seal(owner, token.AccessToken, token.RefreshToken, token.ExpiresIn, token.Scope)
	if err != nil {
		return "", err
	}
	if err := h.store.UpsertCredential(ctx, cred); err != nil {
		return "", fmt.Errorf("failed to store credential: %w", err)
	}

	h.logger.Info("spotify connected", "owner", owner, "expires_at", cred.ExpiresAt)
	return owner, nil
}

// Status reports whether owner has a credential that has not yet expired.
func (h *Handshake) Status(ctx context.Context, owner string) (bool, error) {
	cred, err := h.store.GetCredential(ctx, owner)
	if errors.Is(err, shared.ErrCredentialNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return cred.Valid(h.now()), nil
}

// AccessToken returns owner's decrypted access token.
//
// No credential is [shared.ErrAccessDenied], an expired one is [shared.ErrTokenExpired], and a blob that
// fails to decrypt is reported as access denied so the owner re-authorizes.
func (h *Handshake) AccessToken(ctx context.Context, owner string) (string, error) {
	cred, err := h.store.GetCredential(ctx, owner)
	if errors.Is(err, shared.ErrCredentialNotFound) {
		return "", fmt.Errorf("%w: spotify is not connected for %s", shared.ErrAccessDenied, owner)
	}
	if err != nil {
		return "", err
	}
	if !cred.Valid(h.now()) {
		return "", fmt.Errorf("%w: reconnect spotify", shared.ErrTokenExpired)
	}

	token, err := Decrypt(h.key, cred.AccessEncrypted)
	if err != nil {
		h.logger.Error("stored credential unreadable", "owner", owner, "error", err)
		return "", fmt.Errorf("%w: %w", shared.ErrAccessDenied, err)
	}
	return token, nil
}

// Refresh exchanges the stored refresh token for a new access token.
//
// Only called on explicit request; nothing schedules it.
func (h *Handshake) Refresh(ctx context.Context, owner string) (time.Time, error) {
	cred, err := h.store.GetCredential(ctx, owner)
	if errors.Is(err, shared.ErrCredentialNotFound) {
		return time.Time{}, fmt.Errorf("%w: spotify is not connected for %s", shared.ErrAccessDenied, owner)
	}
	if err != nil {
		return time.Time{}, err
	}

	refresh, err := Decrypt(h.key, cred.RefreshEncrypted)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", shared.ErrAccessDenied, err)
	}
	if refresh == "" {
		return time.Time{}, shared.ErrNoRefreshToken
	}

	token, err := h.provider.RefreshToken(ctx, refresh)
	if err != nil {
		return time.Time{}, fmt.Errorf("token refresh: %w", err)
	}
	if token.RefreshToken != "" {
		refresh = token.RefreshToken
	}
	scope := token.Scope
	if scope == "" {
		scope = cred.Scope
	}

	next, err := h.seal(owner, token.AccessToken, refresh, token.ExpiresIn, scope)
	if err != nil {
		return time.Time{}, err
	}
	if err := h.store.UpsertCredential(ctx, next); err != nil {
		return time.Time{}, fmt.Errorf("failed to store credential: %w", err)
	}
	return next.ExpiresAt, nil
}

// Disconnect deletes owner's credential. Deleting a missing credential is not an error.
func (h *Handshake) Disconnect(ctx context.Context, owner string) error {
	if err := h.store.DeleteCredential(ctx, owner); err != nil {
		return err
	}
	h.logger.Info("spotify disconnected", "owner", owner)
	return nil
}

func (h *Handshake) seal(owner, access, refresh string, expiresIn int, scope string) (models.Credential, error) {
	accessBlob, err := Encrypt(h.key, access)
	if err != nil {
		return models.Credential{}, err
	}
	refreshBlob, err := Encrypt(h.key, refresh)
	if err != nil {
		return models.Credential{}, err
	}

	now := h.now()
	return models.Credential{
		OwnerID:          owner,
		AccessEncrypted:  accessBlob,
		RefreshEncrypted: refreshBlob,
		ExpiresAt:        now.Add(time.Duration(expiresIn) * time.Second),
		Scope:            scope,
		UpdatedAt:        now,
	}, nil
}
