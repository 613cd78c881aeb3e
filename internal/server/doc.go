// Package server provides the HTTP surface of songcrate: routing, middleware and the auth and import handlers.
//
// # Router Infrastructure
//
// [BasicRouter] wraps [http.ServeMux] and its method-aware patterns ("GET /import/{id}").
// [Middleware] wraps handlers in reverse order (last added executes first).
// [New] assembles the full service with [Recover], [Logging] and [Metrics.Middleware] on every route.
//
// # Handlers
//
// Custom handlers implement the [Handler] interface, which adds the patterns a handler owns and lets it
// dispatch on [http.Request.Pattern]:
//   - [AuthHandler] : authorize URL, OAuth callback, connection status, disconnect
//   - [ImportHandler] : start an import, show one, list recent ones
//
// Owner identity comes from the [OwnerHeader], checked by [RequireOwner]. The OAuth callback is the exception:
// its owner is bound to the single-use state token.
//
// # Errors
//
// Errors are returned as {"error": "..."} with the status chosen by [StatusFor].
package server
