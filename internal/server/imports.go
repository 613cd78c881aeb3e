package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songcrate/internal/models"
	"github.com/desertthunder/songcrate/internal/shared"
	"github.com/desertthunder/songcrate/internal/tasks"
	"golang.org/x/sync/singleflight"
)

// Importer runs a playlist import. Implemented by [tasks.Importer].
type Importer interface {
	Import(ctx context.Context, owner, ref string, progress chan<- tasks.ProgressUpdate) (*models.ImportSummary, error)
}

// ImportStore reads import history. Implemented by [repositories.CatalogRepository].
type ImportStore interface {
	GetImport(ctx context.Context, id string) (*models.ImportSummary, error)
	ListImports(ctx context.Context, ownerID string, limit int) ([]models.ImportSummary, error)
}

type importRequest struct {
	PlaylistURL string `json:"playlist_url"`
}

// ImportHandler starts imports and serves import history.
//
// Concurrent requests from one owner for the same playlist share a single run.
type ImportHandler struct {
	importer Importer
	store    ImportStore
	logger   *log.Logger
	group    singleflight.Group
	owned    http.Handler
}

// NewImportHandler creates an [ImportHandler]. Every route requires an [OwnerHeader].
func NewImportHandler(im Importer, store ImportStore, logger *log.Logger) *ImportHandler {
	h := &ImportHandler{importer: im, store: store, logger: logger}
	h.owned = RequireOwner(http.HandlerFunc(h.serve))
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *ImportHandler) Routes() []string {
	return []string{
		"POST /import/spotify",
		"GET /import/{id}",
		"GET /import",
	}
}

func (h *ImportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.owned.ServeHTTP(w, r)
}

func (h *ImportHandler) serve(w http.ResponseWriter, r *http.Request) {
	owner, _ := Owner(r.Context())

	switch r.Pattern {
	case "POST /import/spotify":
		h.start(w, r, owner)
	case "GET /import/{id}":
		h.show(w, r, owner)
	case "GET /import":
		h.list(w, r, owner)
	default:
		http.NotFound(w, r)
	}
}

func (h *ImportHandler) start(w http.ResponseWriter, r *http.Request, owner string) {
	var req importRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("%w: malformed request body", shared.ErrInvalidInput))
		return
	}

	playlistID, err := tasks.ParsePlaylistRef(req.PlaylistURL)
	if err != nil {
		writeError(w, err)
		return
	}

	// The shared run outlives any single caller's request.
	ctx := context.WithoutCancel(r.Context())
	v, err, joined := h.group.Do(owner+"\x00"+playlistID, func() (any, error) {
		return h.importer.Import(ctx, owner, req.PlaylistURL, nil)
	})
	if joined {
		h.logger.Debug("joined in-flight import", "owner", owner, "playlist", playlistID)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v.(*models.ImportSummary))
}

func (h *ImportHandler) show(w http.ResponseWriter, r *http.Request, owner string) {
	summary, err := h.store.GetImport(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if summary.OwnerID != owner {
		writeError(w, fmt.Errorf("%w: import belongs to another owner", shared.ErrAccessDenied))
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *ImportHandler) list(w http.ResponseWriter, r *http.Request, owner string) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: limit must be a positive integer", shared.ErrInvalidInput))
			return
		}
		limit = min(n, 100)
	}

	summaries, err := h.store.ListImports(r.Context(), owner, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"imports": summaries})
}
