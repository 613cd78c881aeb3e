// Package services implements the Spotify client used by songcrate.
//
// # Outcome Normalization
//
// Every call ends in one of: a decoded body, or an [*APIError] whose [ErrorKind] is derived from the response:
//   - 401 → [KindAuthFailed] ([shared.ErrAuthFailed])
//   - 403 → [KindAccessDenied] ([shared.ErrAccessDenied])
//   - 404 → [KindNotFound] ([shared.ErrNotFound])
//   - 429 → [KindRateLimited], Retry-After seconds (default 1)
//   - 500-503 → [KindServer]
//   - other non-2xx → [KindAPI]
//   - no response at all → [KindTransport]
//
// [APIError] implements [retry.Classifier], so the retry package can decide what to do without knowing about HTTP.
//
// # Authentication
//
// The authorize URL is built by [oauth2.Config]. Token exchange is a plain form POST so that its failures go
// through the same normalization as the API calls. API calls use a bearer [oauth2.Transport] built per request
// from the caller's access token.
package services
