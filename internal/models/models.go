// package models defines the catalog, import and credential types persisted by songcrate
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/songcrate/internal/shared"
)

// LocalID derives a stable local identifier from an external URI: the last colon-delimited segment.
//
// "spotify:track:4uLU6hMCjMI75M1A2tKUQC" → "4uLU6hMCjMI75M1A2tKUQC".
func LocalID(uri string) string {
	if i := strings.LastIndexByte(uri, ':'); i >= 0 {
		return uri[i+1:]
	}
	return uri
}

// Track is a catalog track keyed by its Spotify URI.
type Track struct {
	ID         string
	Title      string
	Album      string
	DurationMS int
	SpotifyURI string
	PreviewURL *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (t Track) Validate() error {
	if t.SpotifyURI == "" || t.ID == "" {
		return fmt.Errorf("%w: track requires a uri", shared.ErrInvalidInput)
	}
	return nil
}

// Artist is a catalog artist keyed by its Spotify URI.
type Artist struct {
	ID         string
	Name       string
	SpotifyURI string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (a Artist) Validate() error {
	if a.SpotifyURI == "" || a.ID == "" {
		return fmt.Errorf("%w: artist requires a uri", shared.ErrInvalidInput)
	}
	return nil
}

// UpsertResult reports whether an upsert created or replaced a row.
type UpsertResult int

const (
	Inserted UpsertResult = iota
	Updated
)

func (r UpsertResult) String() string {
	if r == Updated {
		return "updated"
	}
	return "inserted"
}

// ImportStatus is the lifecycle state of an import run.
type ImportStatus string

const (
	ImportInProgress ImportStatus = "in_progress"
	ImportCompleted  ImportStatus = "completed"
	ImportFailed     ImportStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s ImportStatus) Terminal() bool {
	return s == ImportCompleted || s == ImportFailed
}

// ImportSummary is the per-run record of a playlist import.
//
// Total is the provider-reported playlist size from the first page; it need not equal
// Inserted+Updated+Failed.
type ImportSummary struct {
	ImportID     string       `json:"import_id"`
	OwnerID      string       `json:"owner_id"`
	PlaylistID   string       `json:"playlist_id"`
	PlaylistName *string      `json:"playlist_name,omitempty"`
	Total        int          `json:"tracks_found"`
	Inserted     int          `json:"tracks_inserted"`
	Updated      int          `json:"tracks_updated"`
	Failed       int          `json:"tracks_failed"`
	Status       ImportStatus `json:"status"`
	Error        string       `json:"error_message,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// Processed is the number of items the run has accounted for.
func (s ImportSummary) Processed() int {
	return s.Inserted + s.Updated + s.Failed
}

// Credential is an owner's encrypted Spotify token pair.
//
// Both token fields hold nonce || AES-GCM ciphertext.
type Credential struct {
	OwnerID          string
	AccessEncrypted  []byte
	RefreshEncrypted []byte
	ExpiresAt        time.Time
	Scope            string
	UpdatedAt        time.Time
}

// Valid reports whether the access token is still usable at now.
func (c Credential) Valid(now time.Time) bool {
	return c.ExpiresAt.After(now)
}
