// package server contains the middleware & handlers for the songcrate HTTP service
package server

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/songcrate/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that owns a set of route patterns.
//
// Patterns use the [http.ServeMux] syntax, e.g. "GET /import/{id}".
type Handler interface {
	http.Handler
	Routes() []string
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)
	Handle(method, path string, handler http.Handler)
	Handler(handler Handler)
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Options wires the service's collaborators into a router.
type Options struct {
	Auth    Authenticator
	Imports Importer
	Store   ImportStore
	Metrics *Metrics
	Logger  *log.Logger
	// Callbacks, if set, receives the outcome of every OAuth callback.
	Callbacks chan<- CallbackResult
}

// New builds the full route table: auth, imports, health & metrics.
func New(opts Options) *BasicRouter {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	logger := shared.WithLogger(opts.Logger, "component", "http")

	r := NewBasicRouter()
	r.Use(Recover(logger), Logging(logger), opts.Metrics.Middleware)

	if opts.Auth != nil {
		r.Handler(NewAuthHandler(opts.Auth, logger, opts.Callbacks))
	}
	if opts.Imports != nil && opts.Store != nil {
		r.Handler(NewImportHandler(opts.Imports, opts.Store, logger))
	}
	r.Handle(http.MethodGet, "/health", http.HandlerFunc(health))
	r.Handle(http.MethodGet, "/metrics", opts.Metrics.Handler())
	return r
}

// NewHTTPServer returns a server with conservative timeouts. Imports can run for a while, so there is no
// write timeout.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

func health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
