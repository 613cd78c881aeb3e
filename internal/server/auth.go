package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songcrate/internal/shared"
)

// Authenticator is the OAuth handshake the auth routes drive. Implemented by [auth.Handshake].
type Authenticator interface {
	Authorize(owner string) (string, error)
	Callback(ctx context.Context, code, state string) (string, error)
	Status(ctx context.Context, owner string) (bool, error)
	Disconnect(ctx context.Context, owner string) error
}

// CallbackResult is the outcome of one OAuth callback.
type CallbackResult struct {
	Owner string
	err   error
}

func (c CallbackResult) Error() error {
	return c.err
}

// AuthHandler serves the Spotify connect routes.
//
// The callback is the only route without an [OwnerHeader]; its owner is recovered from the state token.
type AuthHandler struct {
	auth      Authenticator
	logger    *log.Logger
	callbacks chan<- CallbackResult
	owned     http.Handler
}

// NewAuthHandler creates an [AuthHandler]. Callback outcomes are sent to callbacks without blocking, when set.
func NewAuthHandler(a Authenticator, logger *log.Logger, callbacks chan<- CallbackResult) *AuthHandler {
	h := &AuthHandler{auth: a, logger: logger, callbacks: callbacks}
	h.owned = RequireOwner(http.HandlerFunc(h.serveOwned))
	return h
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{
		"GET /auth/spotify",
		"GET /auth/spotify/callback",
		"GET /auth/spotify/status",
		"DELETE /auth/spotify",
	}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Pattern == "GET /auth/spotify/callback" {
		h.callback(w, r)
		return
	}
	h.owned.ServeHTTP(w, r)
}

func (h *AuthHandler) serveOwned(w http.ResponseWriter, r *http.Request) {
	owner, _ := Owner(r.Context())

	switch r.Pattern {
	case "GET /auth/spotify":
		url, err := h.auth.Authorize(owner)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"redirect_url": url})
	case "GET /auth/spotify/status":
		connected, err := h.auth.Status(r.Context(), owner)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"connected": connected})
	case "DELETE /auth/spotify":
		if err := h.auth.Disconnect(r.Context(), owner); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errParam := q.Get("error"); errParam != "" && q.Get("code") == "" {
		err := fmt.Errorf("%w: authorization failed: %s", shared.ErrAuthFailed, errParam)
		h.notify(CallbackResult{err: err})
		writeError(w, err)
		return
	}

	owner, err := h.auth.Callback(r.Context(), q.Get("code"), q.Get("state"))
	h.notify(CallbackResult{Owner: owner, err: err})
	if err != nil {
		h.logger.Warn("oauth callback rejected", "error", err)
		writeError(w, err)
		return
	}

	h.logger.Info("spotify connected", "owner", owner)
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, successPage)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *AuthHandler) notify(result CallbackResult) {
	if h.callbacks == nil {
		return
	}
	select {
	case h.callbacks <- result:
	default:
	}
}

const successPage = `<!DOCTYPE html>
<html>
<head>
    <title>Spotify Connected</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
               display: flex; align-items: center; justify-content: center; height: 100vh;
               margin: 0; background: #f5f5f5; }
        .container { text-align: center; background: white; padding: 2rem;
                     border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        h1 { color: #1DB954; margin: 0 0 1rem 0; }
        p { color: #666; margin: 0; }
    </style>
</head>
<body>
    <div class="container">
        <h1>✓ Spotify Connected</h1>
        <p>songcrate can now import your playlists. You can close this window.</p>
    </div>
</body>
</html>
`
