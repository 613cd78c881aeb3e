package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/songcrate/internal/server"
	"github.com/desertthunder/songcrate/internal/shared"
	"github.com/urfave/cli/v3"
)

// loginTimeout bounds how long auth login waits for the browser round trip.
var loginTimeout = 2 * time.Minute

// AuthLogin performs the OAuth2 authorization code flow for Spotify.
//
// Starts the auth routes on the configured server address (which must match redirect_uri), opens the browser
// for user authorization, and waits for the callback to store the credential.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	owner := ownerFlag(cmd)

	results := make(chan server.CallbackResult, 1)
	router := server.New(server.Options{
		Auth:      r.handshake,
		Metrics:   r.metrics,
		Logger:    r.logger,
		Callbacks: results,
	})
	httpServer := server.NewHTTPServer(r.config.Server.Addr(), router)

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("starting OAuth callback server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down server", "error", err)
		}
	}()

	authURL, err := r.handshake.Authorize(owner)
	if err != nil {
		return err
	}

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser automatically", "error", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", loginTimeout)

	timeout := time.NewTimer(loginTimeout)
	defer timeout.Stop()

	var result server.CallbackResult
	select {
	case result = <-results:
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after %s", shared.ErrTimeout, loginTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := result.Error(); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	r.writePlainln("✓ Spotify connected for %s", result.Owner)
	return r.writePlain("You can now use: songcrate import <playlist-url>\n")
}

// AuthStatus reports whether the owner has a usable credential.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	owner := ownerFlag(cmd)

	connected, err := r.handshake.Status(ctx, owner)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(map[string]any{"owner": owner, "connected": connected}, false)
	}
	if connected {
		return r.writePlain("✓ Spotify connected (%s)\n", owner)
	}
	return r.writePlain("✗ Spotify not connected (%s). Run 'songcrate auth login' or 'songcrate auth refresh'.\n", owner)
}

// AuthRefresh trades the stored refresh token for a new access token.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	owner := ownerFlag(cmd)

	expiresAt, err := r.handshake.Refresh(ctx, owner)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Access token refreshed, valid until %s\n", expiresAt.Local().Format(time.RFC1123))
}

// AuthLogout deletes the owner's stored credential.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	owner := ownerFlag(cmd)

	if err := r.handshake.Disconnect(ctx, owner); err != nil {
		return err
	}
	return r.writePlain("✓ Spotify disconnected (%s)\n", owner)
}
