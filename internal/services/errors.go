package services

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/songcrate/internal/retry"
	"github.com/desertthunder/songcrate/internal/shared"
)

// ErrorKind is the normalized failure category of a Spotify call.
type ErrorKind int

const (
	KindAuthFailed ErrorKind = iota + 1
	KindAccessDenied
	KindNotFound
	KindRateLimited
	KindServer    // 500-503
	KindTransport // no status obtained
	KindAPI       // any other non-2xx
)

func (k ErrorKind) String() string {
	switch k {
	case KindAuthFailed:
		return "auth_failed"
	case KindAccessDenied:
		return "access_denied"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server_error"
	case KindTransport:
		return "transport"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4 << 10

// APIError is returned for every non-2xx response and every transport failure.
//
// It unwraps to the matching shared sentinel, so callers can use [errors.Is] with e.g. [shared.ErrNotFound].
type APIError struct {
	Kind       ErrorKind
	Status     int
	RetryAfter time.Duration
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.Kind == KindTransport:
		return fmt.Sprintf("spotify: %s: %v", e.sentinel(), e.Err)
	case e.Body != "":
		return fmt.Sprintf("spotify: %s (status %d): %s", e.sentinel(), e.Status, e.Body)
	default:
		return fmt.Sprintf("spotify: %s (status %d)", e.sentinel(), e.Status)
	}
}

func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.sentinel()}
	}
	return []error{e.sentinel(), e.Err}
}

// RetryClass implements [retry.Classifier].
func (e *APIError) RetryClass() (retry.Class, time.Duration) {
	switch e.Kind {
	case KindRateLimited:
		return retry.RateLimited, e.RetryAfter
	case KindServer, KindTransport:
		return retry.Transient, 0
	default:
		return retry.Fatal, 0
	}
}

func (e *APIError) sentinel() error {
	switch e.Kind {
	case KindAuthFailed:
		return shared.ErrAuthFailed
	case KindAccessDenied:
		return shared.ErrAccessDenied
	case KindNotFound:
		return shared.ErrNotFound
	case KindRateLimited:
		return shared.ErrRateLimited
	case KindServer:
		return shared.ErrServiceUnavailable
	case KindTransport:
		return shared.ErrTransport
	default:
		return shared.ErrAPIRequest
	}
}

// IsKind reports whether err is an [APIError] of kind k.
func IsKind(err error, k ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == k
}

// checkResponse returns nil for 2xx responses and an [*APIError] otherwise.
func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	apiErr := &APIError{Status: resp.StatusCode}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Kind = KindAuthFailed
	case resp.StatusCode == http.StatusForbidden:
		apiErr.Kind = KindAccessDenied
	case resp.StatusCode == http.StatusNotFound:
		apiErr.Kind = KindNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		apiErr.Kind = KindRateLimited
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode >= 500 && resp.StatusCode <= 503:
		apiErr.Kind = KindServer
	default:
		apiErr.Kind = KindAPI
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr.Body = strings.TrimSpace(string(body))
	return apiErr
}

// parseRetryAfter reads Retry-After as whole seconds, defaulting to one second.
func parseRetryAfter(header string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || seconds < 0 {
		return time.Second
	}
	return time.Duration(seconds) * time.Second
}
