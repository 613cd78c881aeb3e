// package tasks implements the playlist import run.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songcrate/internal/models"
	"github.com/desertthunder/songcrate/internal/retry"
	"github.com/desertthunder/songcrate/internal/services"
	"github.com/desertthunder/songcrate/internal/shared"
)

const pageSize = 100

// CatalogStore is the persistence an import run writes to.
//
// Each method must be atomic on its own; runs for different owners share a store.
type CatalogStore interface {
	CreateImport(ctx context.Context, ownerID, playlistID string, playlistName *string) (string, error)
	UpsertTrack(ctx context.Context, t models.Track) (models.UpsertResult, error)
	UpsertArtist(ctx context.Context, a models.Artist) (models.UpsertResult, error)
	UpsertTrackArtist(ctx context.Context, trackID, artistID string) error
	CompleteImport(ctx context.Context, s models.ImportSummary) error
}

// PageFetcher reads playlists from the provider. Implemented by [services.SpotifyClient].
type PageFetcher interface {
	PlaylistPage(ctx context.Context, accessToken, playlistID string, offset, limit int) (*services.PlaylistPage, error)
	PlaylistName(ctx context.Context, accessToken, playlistID string) (string, error)
}

// TokenProvider resolves an owner's access token. Implemented by [auth.Handshake].
type TokenProvider interface {
	AccessToken(ctx context.Context, owner string) (string, error)
}

// ImporterOpts configures an [Importer].
type ImporterOpts struct {
	Store   CatalogStore
	Fetcher PageFetcher
	Tokens  TokenProvider
	Retrier *retry.Retrier
	Logger  *log.Logger
	Now     func() time.Time
	// OnComplete, if set, observes every committed summary.
	OnComplete func(models.ImportSummary)
}

// Importer pages through a playlist and upserts its tracks and artists.
type Importer struct {
	store      CatalogStore
	fetcher    PageFetcher
	tokens     TokenProvider
	retrier    *retry.Retrier
	logger     *log.Logger
	now        func() time.Time
	onComplete func(models.ImportSummary)
}

// NewImporter creates an [Importer]. Store and Fetcher are required.
func NewImporter(opts ImporterOpts) (*Importer, error) {
	if opts.Store == nil || opts.Fetcher == nil {
		return nil, fmt.Errorf("%w: importer requires a store and a fetcher", shared.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Retrier == nil {
		opts.Retrier = retry.New(retry.DefaultPolicy(), opts.Logger)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Importer{
		store:      opts.Store,
		fetcher:    opts.Fetcher,
		tokens:     opts.Tokens,
		retrier:    opts.Retrier,
		logger:     shared.WithLogger(opts.Logger, "task", "import"),
		now:        opts.Now,
		onComplete: opts.OnComplete,
	}, nil
}

// ParsePlaylistRef extracts the playlist ID from a browse URL or a provider URI.
//
//	https://open.spotify.com/playlist/37i9dQZF1DX0BcQWzuB7ZO?si=x → 37i9dQZF1DX0BcQWzuB7ZO
//	spotify:playlist:ABC123                                    → ABC123
func ParsePlaylistRef(input string) (string, error) {
	ref := strings.TrimSpace(input)
	invalid := fmt.Errorf("%w: invalid playlist URL: %s", shared.ErrInvalidInput, ref)

	if parts := strings.Split(ref, ":"); len(parts) == 3 && parts[1] == "playlist" && !strings.HasPrefix(parts[2], "//") {
		if parts[0] == "" || !isAlphanumeric(parts[2]) {
			return "", invalid
		}
		return parts[2], nil
	}

	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "https" || !strings.HasPrefix(u.Hostname(), "open.") {
		return "", invalid
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 2 || segments[0] != "playlist" || !isAlphanumeric(segments[1]) {
		return "", invalid
	}
	return segments[1], nil
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// Import resolves the owner's token and runs a full import of ref.
//
// Reference and token errors are returned before any import row exists.
func (im *Importer) Import(ctx context.Context, owner, ref string, progress chan<- ProgressUpdate) (*models.ImportSummary, error) {
	playlistID, err := ParsePlaylistRef(ref)
	if err != nil {
		return nil, err
	}
	if im.tokens == nil {
		return nil, fmt.Errorf("%w: no token provider configured", shared.ErrNotAuthenticated)
	}

	token, err := im.tokens.AccessToken(ctx, owner)
	if err != nil {
		return nil, err
	}
	return im.Run(ctx, owner, token, playlistID, progress)
}

// Run imports playlistID with an already resolved access token.
//
// Pages are fetched in order through the retrier. When the retrier gives up the summary is committed as
// failed with the counts so far and the fetch error is returned; applied rows are kept.
// Per-item persistence failures only increment Failed.
func (im *Importer) Run(ctx context.Context, owner, token, playlistID string, progress chan<- ProgressUpdate) (*models.ImportSummary, error) {
	logger := im.logger.With("owner", owner, "playlist", playlistID)

	name := im.playlistName(ctx, logger, token, playlistID)

	id, err := im.store.CreateImport(ctx, owner, playlistID, name)
	if err != nil {
		return nil, err
	}

	summary := models.ImportSummary{
		ImportID:     id,
		OwnerID:      owner,
		PlaylistID:   playlistID,
		PlaylistName: name,
		Status:       models.ImportInProgress,
		StartedAt:    im.now(),
	}
	logger = logger.With("import", id)
	logger.Info("import started")
	sendProgress(progress, importStartUpdate(playlistID, name))

	for offset, total := 0, -1; total < 0 || offset < total; offset += pageSize {
		page, err := retry.Do(ctx, im.retrier, func(ctx context.Context) (*services.PlaylistPage, error) {
			return im.fetcher.PlaylistPage(ctx, token, playlistID, offset, pageSize)
		})
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				err = fmt.Errorf("%w: %w", shared.ErrPlaylistNotFound, err)
			}
			logger.Error("page fetch failed", "offset", offset, "error", err)
			return im.fail(ctx, summary, err, progress)
		}

		if total < 0 {
			total = page.Total
			summary.Total = total
		}
		sendProgress(progress, pageUpdate(offset, total))

		for i, item := range page.Items {
			im.applyItem(ctx, logger, &summary, item, offset+i+1, progress)
		}
	}

	if summary.Processed() != summary.Total {
		logger.Warn("item tallies differ from reported total", "total", summary.Total, "processed", summary.Processed())
	}

	summary.Status = models.ImportCompleted
	completed := im.now()
	summary.CompletedAt = &completed
	if err := im.store.CompleteImport(ctx, summary); err != nil {
		return nil, fmt.Errorf("failed to commit import summary: %w", err)
	}
	im.observe(summary)

	logger.Info("import completed", "total", summary.Total, "inserted", summary.Inserted, "updated", summary.Updated, "failed", summary.Failed)
	sendProgress(progress, doneUpdate(summary))
	return &summary, nil
}

// fail commits a failed summary and returns cause, joined with the commit error if the commit also fails.
func (im *Importer) fail(ctx context.Context, summary models.ImportSummary, cause error, progress chan<- ProgressUpdate) (*models.ImportSummary, error) {
	summary.Status = models.ImportFailed
	summary.Error = cause.Error()
	completed := im.now()
	summary.CompletedAt = &completed

	// The run context may be the reason the fetch failed.
	commitCtx := context.WithoutCancel(ctx)
	if err := im.store.CompleteImport(commitCtx, summary); err != nil {
		return &summary, errors.Join(cause, fmt.Errorf("failed to commit import summary: %w", err))
	}
	im.observe(summary)

	sendProgress(progress, failedUpdate(summary, cause))
	return &summary, cause
}

func (im *Importer) applyItem(ctx context.Context, logger *log.Logger, s *models.ImportSummary, item services.PlaylistItem, step int, progress chan<- ProgressUpdate) {
	if item.Track == nil || item.Track.URI == "" {
		s.Failed++
		sendProgress(progress, trackUpdate(step, s.Total, nil, ""))
		return
	}

	src := item.Track
	track := models.Track{
		ID:         models.LocalID(src.URI),
		Title:      src.Name,
		Album:      src.Album.Name,
		DurationMS: src.DurationMS,
		SpotifyURI: src.URI,
		PreviewURL: src.PreviewURL,
	}

	result, err := im.store.UpsertTrack(ctx, track)
	if err != nil {
		s.Failed++
		logger.Warn("track upsert failed", "uri", src.URI, "error", err)
		sendProgress(progress, trackUpdate(step, s.Total, &track, "✗"))
		return
	}

	switch result {
	case models.Inserted:
		s.Inserted++
	case models.Updated:
		s.Updated++
	}

	for _, ref := range src.Artists {
		artist := models.Artist{ID: models.LocalID(ref.URI), Name: ref.Name, SpotifyURI: ref.URI}
		if _, err := im.store.UpsertArtist(ctx, artist); err != nil {
			s.Failed++
			logger.Warn("artist upsert failed", "uri", ref.URI, "error", err)
			continue
		}
		if err := im.store.UpsertTrackArtist(ctx, track.ID, artist.ID); err != nil {
			s.Failed++
			logger.Warn("track artist link failed", "track", track.ID, "artist", artist.ID, "error", err)
		}
	}

	sendProgress(progress, trackUpdate(step, s.Total, &track, result.String()))
}

// playlistName is best effort; a missing name never blocks an import.
func (im *Importer) playlistName(ctx context.Context, logger *log.Logger, token, playlistID string) *string {
	name, err := im.fetcher.PlaylistName(ctx, token, playlistID)
	if err != nil {
		logger.Debug("playlist name lookup failed", "error", err)
		return nil
	}
	if name == "" {
		return nil
	}
	return &name
}

func (im *Importer) observe(s models.ImportSummary) {
	if im.onComplete != nil {
		im.onComplete(s)
	}
}
