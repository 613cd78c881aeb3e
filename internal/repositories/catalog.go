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

// CatalogRepository stores tracks, artists, their links and import summaries.
//
// Each upsert is a single INSERT ... ON CONFLICT ... RETURNING statement, so concurrent imports that
// touch the same URI never race between a lookup and a write. The revision column counts updates:
// a returned revision of 0 means the row was just inserted.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository creates a new CatalogRepository with the given database connection
func NewCatalogRepository(db *sql.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// UpsertTrack inserts or replaces a track keyed by its Spotify URI.
func (r *CatalogRepository) UpsertTrack(ctx context.Context, t models.Track) (models.UpsertResult, error) {
	if err := t.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO tracks (id, title, album, duration_ms, spotify_uri, preview_url)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(spotify_uri) DO UPDATE SET
			title = excluded.title,
			album = excluded.album,
			duration_ms = excluded.duration_ms,
			preview_url = excluded.preview_url,
			revision = tracks.revision + 1,
			updated_at = CURRENT_TIMESTAMP
		RETURNING revision
	`

	var revision int
	err := r.db.QueryRowContext(ctx, query, t.ID, t.Title, t.Album, t.DurationMS, t.SpotifyURI, nullString(t.PreviewURL)).Scan(&revision)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert track %s: %w", t.SpotifyURI, err)
	}
	return upsertResult(revision), nil
}

// UpsertArtist inserts or renames an artist keyed by its Spotify URI.
func (r *CatalogRepository) UpsertArtist(ctx context.Context, a models.Artist) (models.UpsertResult, error) {
	if err := a.Validate(); err != nil {
		return 0, fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO artists (id, name, spotify_uri)
		VALUES (?, ?, ?)
		ON CONFLICT(spotify_uri) DO UPDATE SET
			name = excluded.name,
			revision = artists.revision + 1,
			updated_at = CURRENT_TIMESTAMP
		RETURNING revision
	`

	var revision int
	if err := r.db.QueryRowContext(ctx, query, a.ID, a.Name, a.SpotifyURI).Scan(&revision); err != nil {
		return 0, fmt.Errorf("failed to upsert artist %s: %w", a.SpotifyURI, err)
	}
	return upsertResult(revision), nil
}

// UpsertTrackArtist links a track and an artist. Linking an existing pair is a no-op.
func (r *CatalogRepository) UpsertTrackArtist(ctx context.Context, trackID, artistID string) error {
	query := `INSERT INTO track_artists (track_id, artist_id) VALUES (?, ?) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, trackID, artistID); err != nil {
		return fmt.Errorf("failed to link track %s to artist %s: %w", trackID, artistID, err)
	}
	return nil
}

// GetTrack retrieves a track by local ID.
func (r *CatalogRepository) GetTrack(ctx context.Context, id string) (*models.Track, error) {
	query := `
		SELECT id, title, album, duration_ms, spotify_uri, preview_url, created_at, updated_at
		FROM tracks
		WHERE id = ?
	`

	var (
		t          models.Track
		album      sql.NullString
		previewURL sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(&t.ID, &t.Title, &album, &t.DurationMS, &t.SpotifyURI, &previewURL, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: track %s", shared.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track: %w", err)
	}

	t.Album = album.String
	t.PreviewURL = stringPtr(previewURL)
	return &t, nil
}

// TrackArtists returns the artists linked to a track, ordered by name.
func (r *CatalogRepository) TrackArtists(ctx context.Context, trackID string) ([]models.Artist, error) {
	query := `
		SELECT a.id, a.name, a.spotify_uri, a.created_at, a.updated_at
		FROM artists a
		JOIN track_artists ta ON ta.artist_id = a.id
		WHERE ta.track_id = ?
		ORDER BY a.name
	`

	rows, err := r.db.QueryContext(ctx, query, trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to query artists: %w", err)
	}
	defer rows.Close()

	var artists []models.Artist
	for rows.Next() {
		var a models.Artist
		if err := rows.Scan(&a.ID, &a.Name, &a.SpotifyURI, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan artist: %w", err)
		}
		artists = append(artists, a)
	}
	return artists, rows.Err()
}

// CatalogCounts is a row count snapshot of the catalog tables.
type CatalogCounts struct {
	Tracks  int `json:"tracks"`
	Artists int `json:"artists"`
	Links   int `json:"links"`
}

// Counts returns the number of tracks, artists and links.
func (r *CatalogRepository) Counts(ctx context.Context) (CatalogCounts, error) {
	var c CatalogCounts
	query := `
		SELECT
			(SELECT COUNT(*) FROM tracks),
			(SELECT COUNT(*) FROM artists),
			(SELECT COUNT(*) FROM track_artists)
	`
	if err := r.db.QueryRowContext(ctx, query).Scan(&c.Tracks, &c.Artists, &c.Links); err != nil {
		return c, fmt.Errorf("failed to count catalog: %w", err)
	}
	return c, nil
}

// CreateImport records a new in-progress import and returns its ID.
func (r *CatalogRepository) CreateImport(ctx context.Context, ownerID, playlistID string, playlistName *string) (string, error) {
	id := shared.GenerateID()
	query := `
		INSERT INTO imports (id, owner_id, playlist_id, playlist_name, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, id, ownerID, playlistID, nullString(playlistName), models.ImportInProgress, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create import: %w", err)
	}
	return id, nil
}

// CompleteImport writes the final counters and terminal status of an import.
//
// An import can be completed once; completing it again returns [shared.ErrImportNotFound].
func (r *CatalogRepository) CompleteImport(ctx context.Context, s models.ImportSummary) error {
	if !s.Status.Terminal() {
		return fmt.Errorf("%w: import status %q is not terminal", shared.ErrInvalidInput, s.Status)
	}

	completedAt := time.Now().UTC()
	if s.CompletedAt != nil {
		completedAt = s.CompletedAt.UTC()
	}

	var errMsg sql.NullString
	if s.Error != "" {
		errMsg = sql.NullString{String: s.Error, Valid: true}
	}

	query := `
		UPDATE imports
		SET tracks_found = ?, tracks_inserted = ?, tracks_updated = ?, tracks_failed = ?,
			status = ?, error_message = ?, completed_at = ?,
			playlist_name = COALESCE(?, playlist_name)
		WHERE id = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		s.Total, s.Inserted, s.Updated, s.Failed,
		s.Status, errMsg, completedAt,
		nullString(s.PlaylistName),
		s.ImportID, models.ImportInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to complete import: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: no in-progress import %s", shared.ErrImportNotFound, s.ImportID)
	}
	return nil
}

const importColumns = `
	id, owner_id, playlist_id, playlist_name, tracks_found, tracks_inserted, tracks_updated, tracks_failed,
	status, error_message, started_at, completed_at
`

// GetImport retrieves an import summary by ID.
func (r *CatalogRepository) GetImport(ctx context.Context, id string) (*models.ImportSummary, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+importColumns+" FROM imports WHERE id = ?", id)
	s, err := scanImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrImportNotFound, id)
	}
	return s, err
}

// ListImports returns an owner's most recent imports, newest first.
func (r *CatalogRepository) ListImports(ctx context.Context, ownerID string, limit int) ([]models.ImportSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	query := "SELECT " + importColumns + " FROM imports WHERE owner_id = ? ORDER BY started_at DESC, id LIMIT ?"
	rows, err := r.db.QueryContext(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	summaries := []models.ImportSummary{}
	for rows.Next() {
		s, err := scanImport(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *s)
	}
	return summaries, rows.Err()
}

func scanImport(row scanner) (*models.ImportSummary, error) {
	var (
		s           models.ImportSummary
		name        sql.NullString
		errMsg      sql.NullString
		completedAt sql.NullTime
	)

	err := row.Scan(
		&s.ImportID, &s.OwnerID, &s.PlaylistID, &name,
		&s.Total, &s.Inserted, &s.Updated, &s.Failed,
		&s.Status, &errMsg, &s.StartedAt, &completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan import: %w", err)
	}

	s.PlaylistName = stringPtr(name)
	s.Error = errMsg.String
	s.CompletedAt = timePtr(completedAt)
	return &s, nil
}

func upsertResult(revision int) models.UpsertResult {
	if revision == 0 {
		return models.Inserted
	}
	return models.Updated
}
