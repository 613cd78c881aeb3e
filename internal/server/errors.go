package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/songcrate/internal/shared"
)

type errorBody struct {
	Error string `json:"error"`
}

var statusGroups = []struct {
	status int
	errs   []error
}{
	{http.StatusBadRequest, []error{shared.ErrInvalidInput, shared.ErrStateUnknown, shared.ErrStateExpired}},
	{http.StatusUnauthorized, []error{shared.ErrAuthFailed, shared.ErrTokenExpired, shared.ErrNotAuthenticated}},
	{http.StatusForbidden, []error{shared.ErrAccessDenied, shared.ErrCredentialNotFound, shared.ErrDecrypt}},
	{http.StatusNotFound, []error{shared.ErrNotFound, shared.ErrPlaylistNotFound, shared.ErrImportNotFound}},
	{http.StatusBadGateway, []error{shared.ErrRateLimited, shared.ErrServiceUnavailable, shared.ErrAPIRequest, shared.ErrTransport}},
}

// StatusFor maps an error to the HTTP status returned to callers. Unrecognized errors are 500s.
//
// Groups are checked in order, so an error wrapping sentinels from two groups takes the earlier one.
func StatusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, g := range statusGroups {
		for _, target := range g.errs {
			if errors.Is(err, target) {
				return g.status
			}
		}
	}
	return http.StatusInternalServerError
}

// messageFor hides internal error detail behind 500s.
func messageFor(err error, status int) string {
	switch {
	case errors.Is(err, shared.ErrStateUnknown):
		return "Invalid state parameter"
	case errors.Is(err, shared.ErrStateExpired):
		return "State parameter expired"
	case status == http.StatusInternalServerError:
		return "internal server error"
	default:
		return err.Error()
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	writeJSON(w, status, errorBody{Error: messageFor(err, status)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
