package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/desertthunder/songcrate/internal/server"
	"github.com/urfave/cli/v3"
)

// Serve runs the HTTP service until ctx is cancelled, then drains in-flight requests.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}

	router := server.New(server.Options{
		Auth:    r.handshake,
		Imports: r.importer,
		Store:   r.catalog,
		Metrics: r.metrics,
		Logger:  r.logger,
	})
	httpServer := server.NewHTTPServer(addr, router)

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("listening", "addr", addr, "redirect_uri", r.spotify.RedirectURI())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
