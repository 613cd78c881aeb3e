// package testing contains shared testing utilities
package testing

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"

	"github.com/desertthunder/songcrate/internal/shared"
)

// PlaylistPageJSON is a single-page playlist: three items, the second a local (null) track.
//
// Two distinct artists, three track/artist links.
const PlaylistPageJSON = `{
  "items": [
    {"track": {
      "name": "Song One",
      "uri": "spotify:track:t1",
      "album": {"name": "Album One"},
      "duration_ms": 200000,
      "preview_url": "https://p.scdn.co/mp3-preview/1",
      "artists": [
        {"name": "Artist A", "uri": "spotify:artist:a1"},
        {"name": "Artist B", "uri": "spotify:artist:a2"}
      ]
    }},
    {"track": null},
    {"track": {
      "name": "Song Three",
      "uri": "spotify:track:t3",
      "album": {"name": "Album Three"},
      "duration_ms": 180000,
      "preview_url": null,
      "artists": [
        {"name": "Artist B", "uri": "spotify:artist:a2"}
      ]
    }}
  ],
  "total": 3,
  "next": null,
  "offset": 0,
  "limit": 100
}`

// TrackPageJSON renders a page of count tracks starting at offset, each with one artist.
func TrackPageJSON(total, offset, count int) string {
	items := make([]string, 0, count)
	for i := offset; i < offset+count; i++ {
		items = append(items, fmt.Sprintf(
			`{"track":{"name":"Song %d","uri":"spotify:track:t%d","album":{"name":"Album"},"duration_ms":1000,"preview_url":null,"artists":[{"name":"Artist %d","uri":"spotify:artist:a%d"}]}}`,
			i, i, i%5, i%5,
		))
	}
	return fmt.Sprintf(`{"items":[%s],"total":%d,"next":null,"offset":%d,"limit":100}`, strings.Join(items, ","), total, offset)
}

// NewTestDB opens a migrated in-memory database closed at test cleanup.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := shared.NewDatabase(shared.MemoryDSN)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
