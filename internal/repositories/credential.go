package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/songcrate/internal/models"
	"github.com/desertthunder/songcrate/internal/shared"
)

// CredentialRepository stores one encrypted Spotify token pair per owner.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository creates a new CredentialRepository with the given database connection
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// UpsertCredential replaces the owner's credential wholesale.
func (r *CredentialRepository) UpsertCredential(ctx context.Context, c models.Credential) error {
	if c.OwnerID == "" {
		return fmt.Errorf("%w: credential requires an owner", shared.ErrInvalidInput)
	}
	updatedAt := c.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO spotify_credentials (owner_id, access_token_encrypted, refresh_token_encrypted, expires_at, scope, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id) DO UPDATE SET
			access_token_encrypted = excluded.access_token_encrypted,
			refresh_token_encrypted = excluded.refresh_token_encrypted,
			expires_at = excluded.expires_at,
			scope = excluded.scope,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, query, c.OwnerID, c.AccessEncrypted, c.RefreshEncrypted, c.ExpiresAt.UTC(), c.Scope, updatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

// GetCredential returns [shared.ErrCredentialNotFound] when the owner has never connected.
func (r *CredentialRepository) GetCredential(ctx context.Context, ownerID string) (*models.Credential, error) {
	query := `
		SELECT owner_id, access_token_encrypted, refresh_token_encrypted, expires_at, scope, updated_at
		FROM spotify_credentials
		WHERE owner_id = ?
	`

	var c models.Credential
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(&c.OwnerID, &c.AccessEncrypted, &c.RefreshEncrypted, &c.ExpiresAt, &c.Scope, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrCredentialNotFound, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan credential: %w", err)
	}
	return &c, nil
}

// DeleteCredential removes the owner's credential if present.
func (r *CredentialRepository) DeleteCredential(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM spotify_credentials WHERE owner_id = ?", ownerID); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}
