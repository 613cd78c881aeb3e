package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/songcrate/internal/models"
	"github.com/desertthunder/songcrate/internal/services"
	"github.com/desertthunder/songcrate/internal/shared"
	"github.com/desertthunder/songcrate/internal/tasks"
)

type fakeAuth struct {
	connected   bool
	callbackErr error
	owner       string
	disconnects []string
}

func (f *fakeAuth) Authorize(owner string) (string, error) {
	return "https://accounts.example.com/authorize?state=s&owner=" + owner, nil
}

func (f *fakeAuth) Callback(_ context.Context, code, state string) (string, error) {
	if f.callbackErr != nil {
		return "", f.callbackErr
	}
	return f.owner, nil
}

func (f *fakeAuth) Status(context.Context, string) (bool, error) {
	return f.connected, nil
}

func (f *fakeAuth) Disconnect(_ context.Context, owner string) error {
	f.disconnects = append(f.disconnects, owner)
	return nil
}

type fakeImporter struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (f *fakeImporter) Import(_ context.Context, owner, ref string, _ chan<- tasks.ProgressUpdate) (*models.ImportSummary, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	if f.err != nil {
		return nil, f.err
	}
	id, _ := tasks.ParsePlaylistRef(ref)
	return &models.ImportSummary{
		ImportID:   "imp-1",
		OwnerID:    owner,
		PlaylistID: id,
		Total:      3,
		Inserted:   2,
		Failed:     1,
		Status:     models.ImportCompleted,
	}, nil
}

type fakeImportStore struct {
	summaries map[string]models.ImportSummary
}

func (f *fakeImportStore) GetImport(_ context.Context, id string) (*models.ImportSummary, error) {
	s, ok := f.summaries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrImportNotFound, id)
	}
	return &s, nil
}

func (f *fakeImportStore) ListImports(_ context.Context, owner string, limit int) ([]models.ImportSummary, error) {
	out := []models.ImportSummary{}
	for _, s := range f.summaries {
		if s.OwnerID == owner && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func newTestRouter(a Authenticator, im Importer, store ImportStore) *BasicRouter {
	return New(Options{Auth: a, Imports: im, Store: store, Logger: shared.NewLogger(io.Discard)})
}

func do(t *testing.T, h http.Handler, method, target, owner, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if owner != "" {
		req.Header.Set(OwnerHeader, owner)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{shared.ErrInvalidInput, http.StatusBadRequest},
		{shared.ErrStateUnknown, http.StatusBadRequest},
		{shared.ErrStateExpired, http.StatusBadRequest},
		{shared.ErrAuthFailed, http.StatusUnauthorized},
		{shared.ErrTokenExpired, http.StatusUnauthorized},
		{shared.ErrNotAuthenticated, http.StatusUnauthorized},
		{shared.ErrAccessDenied, http.StatusForbidden},
		{shared.ErrCredentialNotFound, http.StatusForbidden},
		{shared.ErrDecrypt, http.StatusForbidden},
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrPlaylistNotFound, http.StatusNotFound},
		{shared.ErrImportNotFound, http.StatusNotFound},
		{shared.ErrRateLimited, http.StatusBadGateway},
		{shared.ErrServiceUnavailable, http.StatusBadGateway},
		{shared.ErrAPIRequest, http.StatusBadGateway},
		{shared.ErrTransport, http.StatusBadGateway},
		{errors.New("database is locked"), http.StatusInternalServerError},
		{fmt.Errorf("%w: %w", shared.ErrAccessDenied, shared.ErrDecrypt), http.StatusForbidden},
		{&services.APIError{Kind: services.KindRateLimited, Status: 429}, http.StatusBadGateway},
		{&services.APIError{Kind: services.KindAuthFailed, Status: 401}, http.StatusUnauthorized},
		{&services.APIError{Kind: services.KindNotFound, Status: 404}, http.StatusNotFound},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestAuthRoutes(t *testing.T) {
	t.Run("authorize returns redirect url", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeAuth{}, nil, nil), http.MethodGet, "/auth/spotify", "alice", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		body := decode[map[string]string](t, rec)
		if !strings.Contains(body["redirect_url"], "owner=alice") {
			t.Errorf("unexpected redirect url: %q", body["redirect_url"])
		}
	})

	t.Run("authorize requires owner", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeAuth{}, nil, nil), http.MethodGet, "/auth/spotify", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("callback succeeds without owner header", func(t *testing.T) {
		results := make(chan CallbackResult, 1)
		r := New(Options{Auth: &fakeAuth{owner: "alice"}, Logger: shared.NewLogger(io.Discard), Callbacks: results})

		rec := do(t, r, http.MethodGet, "/auth/spotify/callback?code=c&state=s", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := decode[map[string]bool](t, rec); !body["success"] {
			t.Error("expected success true")
		}

		select {
		case res := <-results:
			if res.Error() != nil || res.Owner != "alice" {
				t.Errorf("unexpected callback result: %+v", res)
			}
		default:
			t.Error("expected callback result to be sent")
		}
	})

	t.Run("callback renders page for browsers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/auth/spotify/callback?code=c&state=s", nil)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		rec := httptest.NewRecorder()
		newTestRouter(&fakeAuth{owner: "alice"}, nil, nil).ServeHTTP(rec, req)

		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Spotify Connected") {
			t.Errorf("expected success page, got %d %q", rec.Code, rec.Body.String())
		}
	})

	t.Run("callback rejects unknown state", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeAuth{callbackErr: shared.ErrStateUnknown}, nil, nil), http.MethodGet, "/auth/spotify/callback?code=c&state=bogus", "", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if body := decode[errorBody](t, rec); body.Error != "Invalid state parameter" {
			t.Errorf("unexpected error message: %q", body.Error)
		}
	})

	t.Run("callback rejects expired state", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeAuth{callbackErr: shared.ErrStateExpired}, nil, nil), http.MethodGet, "/auth/spotify/callback?code=c&state=old", "", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		if body := decode[errorBody](t, rec); body.Error != "State parameter expired" {
			t.Errorf("unexpected error message: %q", body.Error)
		}
	})

	t.Run("callback with provider error", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeAuth{}, nil, nil), http.MethodGet, "/auth/spotify/callback?error=access_denied&state=s", "", "")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("status", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeAuth{connected: true}, nil, nil), http.MethodGet, "/auth/spotify/status", "alice", "")
		if body := decode[map[string]bool](t, rec); !body["connected"] {
			t.Error("expected connected true")
		}
	})

	t.Run("disconnect", func(t *testing.T) {
		a := &fakeAuth{}
		rec := do(t, newTestRouter(a, nil, nil), http.MethodDelete, "/auth/spotify", "alice", "")
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
		if len(a.disconnects) != 1 || a.disconnects[0] != "alice" {
			t.Errorf("unexpected disconnects: %v", a.disconnects)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := do(t, newTestRouter(&fakeAuth{}, nil, nil), http.MethodPost, "/auth/spotify/status", "alice", "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

func TestImportRoutes(t *testing.T) {
	store := &fakeImportStore{summaries: map[string]models.ImportSummary{
		"imp-a": {ImportID: "imp-a", OwnerID: "alice", Status: models.ImportCompleted, StartedAt: time.Now()},
		"imp-b": {ImportID: "imp-b", OwnerID: "bob", Status: models.ImportFailed, StartedAt: time.Now()},
	}}

	t.Run("start import", func(t *testing.T) {
		rec := do(t, newTestRouter(nil, &fakeImporter{}, store), http.MethodPost, "/import/spotify", "alice",
			`{"playlist_url": "https://open.spotify.com/playlist/abc123?si=x"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		body := decode[map[string]any](t, rec)
		for _, key := range []string{"import_id", "status", "tracks_found", "tracks_inserted", "tracks_updated", "tracks_failed"} {
			if _, ok := body[key]; !ok {
				t.Errorf("expected key %q in response", key)
			}
		}
		if body["status"] != "completed" || body["tracks_found"] != float64(3) {
			t.Errorf("unexpected body: %v", body)
		}
	})

	t.Run("invalid url", func(t *testing.T) {
		im := &fakeImporter{}
		rec := do(t, newTestRouter(nil, im, store), http.MethodPost, "/import/spotify", "alice", `{"playlist_url": "https://example.com/playlist/abc"}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
		if body := decode[errorBody](t, rec); !strings.Contains(body.Error, "https://example.com/playlist/abc") {
			t.Errorf("expected message to echo input, got %q", body.Error)
		}
		if im.calls.Load() != 0 {
			t.Error("expected importer not to be called")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, newTestRouter(nil, &fakeImporter{}, store), http.MethodPost, "/import/spotify", "alice", `{`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("importer error maps status", func(t *testing.T) {
		im := &fakeImporter{err: fmt.Errorf("%w: no credential", shared.ErrAccessDenied)}
		rec := do(t, newTestRouter(nil, im, store), http.MethodPost, "/import/spotify", "alice", `{"playlist_url": "spotify:playlist:abc"}`)
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("requires owner", func(t *testing.T) {
		rec := do(t, newTestRouter(nil, &fakeImporter{}, store), http.MethodPost, "/import/spotify", "", `{"playlist_url": "spotify:playlist:abc"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("concurrent identical requests share a run", func(t *testing.T) {
		im := &fakeImporter{release: make(chan struct{})}
		router := newTestRouter(nil, im, store)

		var wg sync.WaitGroup
		codes := make([]int, 2)
		for i := range codes {
			wg.Add(1)
			go func() {
				defer wg.Done()
				codes[i] = do(t, router, http.MethodPost, "/import/spotify", "alice", `{"playlist_url": "spotify:playlist:abc"}`).Code
			}()
		}

		// Let both requests reach the group before the run finishes.
		deadline := time.After(2 * time.Second)
		for im.calls.Load() == 0 {
			select {
			case <-deadline:
				t.Fatal("import never started")
			default:
				time.Sleep(time.Millisecond)
			}
		}
		time.Sleep(50 * time.Millisecond)
		close(im.release)
		wg.Wait()

		if im.calls.Load() != 1 {
			t.Errorf("expected one run, got %d", im.calls.Load())
		}
		if codes[0] != http.StatusOK || codes[1] != http.StatusOK {
			t.Errorf("expected both requests to succeed, got %v", codes)
		}
	})

	t.Run("show own import", func(t *testing.T) {
		rec := do(t, newTestRouter(nil, &fakeImporter{}, store), http.MethodGet, "/import/imp-a", "alice", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if body := decode[models.ImportSummary](t, rec); body.ImportID != "imp-a" {
			t.Errorf("unexpected import: %s", body.ImportID)
		}
	})

	t.Run("show other owner's import", func(t *testing.T) {
		rec := do(t, newTestRouter(nil, &fakeImporter{}, store), http.MethodGet, "/import/imp-b", "alice", "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("expected 403, got %d", rec.Code)
		}
	})

	t.Run("show unknown import", func(t *testing.T) {
		rec := do(t, newTestRouter(nil, &fakeImporter{}, store), http.MethodGet, "/import/nope", "alice", "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("list", func(t *testing.T) {
		rec := do(t, newTestRouter(nil, &fakeImporter{}, store), http.MethodGet, "/import", "alice", "")
		body := decode[map[string][]models.ImportSummary](t, rec)
		if len(body["imports"]) != 1 || body["imports"][0].OwnerID != "alice" {
			t.Errorf("unexpected list: %+v", body["imports"])
		}
	})

	t.Run("list rejects bad limit", func(t *testing.T) {
		rec := do(t, newTestRouter(nil, &fakeImporter{}, store), http.MethodGet, "/import?limit=zero", "alice", "")
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestOperationalRoutes(t *testing.T) {
	router := newTestRouter(&fakeAuth{}, nil, nil)

	t.Run("health", func(t *testing.T) {
		rec := do(t, router, http.MethodGet, "/health", "", "")
		if body := decode[map[string]string](t, rec); body["status"] != "ok" {
			t.Errorf("unexpected health body: %v", body)
		}
	})

	t.Run("metrics count requests by route", func(t *testing.T) {
		do(t, router, http.MethodGet, "/auth/spotify/status", "alice", "")
		rec := do(t, router, http.MethodGet, "/metrics", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `songcrate_http_requests_total{method="GET",route="GET /auth/spotify/status",status="200"} 1`) {
			t.Errorf("expected request counter in exposition")
		}
	})
}

func TestMetricsObserveImport(t *testing.T) {
	m := NewMetrics()
	m.ObserveImport(models.ImportSummary{Status: models.ImportCompleted, Inserted: 2, Failed: 1})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`songcrate_imports_total{status="completed"} 1`,
		`songcrate_import_tracks_total{outcome="inserted"} 2`,
		`songcrate_import_tracks_total{outcome="failed"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}

func TestRecover(t *testing.T) {
	h := Recover(shared.NewLogger(io.Discard))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
