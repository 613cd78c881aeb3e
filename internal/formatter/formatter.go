// package formatter renders import history as CSV, Markdown or plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/songcrate/internal/models"
	"github.com/desertthunder/songcrate/internal/shared"
)

// Format names accepted by [Render].
const (
	FormatText     = "text"
	FormatCSV      = "csv"
	FormatMarkdown = "markdown"
)

var csvHeaders = []string{"ID", "Playlist ID", "Playlist", "Status", "Found", "Inserted", "Updated", "Failed", "Started", "Completed", "Error"}

// Render dispatches to the renderer for format.
func Render(format string, summaries []models.ImportSummary) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", FormatText:
		return ToText(summaries), nil
	case FormatCSV:
		return ToCSV(summaries)
	case FormatMarkdown, "md":
		return ToMarkdown(summaries), nil
	default:
		return nil, fmt.Errorf("%w: unknown format %q (want text, csv or markdown)", shared.ErrInvalidArgument, format)
	}
}

// ToCSV writes one row per import. Times are RFC 3339 in UTC; an unfinished import has an empty Completed.
func ToCSV(summaries []models.ImportSummary) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(csvHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range summaries {
		record := []string{
			s.ImportID,
			s.PlaylistID,
			playlistLabel(s),
			string(s.Status),
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Inserted),
			strconv.Itoa(s.Updated),
			strconv.Itoa(s.Failed),
			s.StartedAt.UTC().Format(time.RFC3339),
			completedAt(s, time.RFC3339),
			s.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ToMarkdown renders a table with a totals line.
func ToMarkdown(summaries []models.ImportSummary) []byte {
	var buf bytes.Buffer

	buf.WriteString("# Imports\n\n")
	if len(summaries) == 0 {
		buf.WriteString("_No imports yet._\n")
		return buf.Bytes()
	}

	buf.WriteString("| Playlist | Status | Found | Inserted | Updated | Failed | Started |\n")
	buf.WriteString("|---|---|---:|---:|---:|---:|---|\n")

	var inserted, updated, failed int
	for _, s := range summaries {
		fmt.Fprintf(&buf, "| %s | %s | %d | %d | %d | %d | %s |\n",
			escapeCell(playlistLabel(s)), statusLabel(s), s.Total, s.Inserted, s.Updated, s.Failed,
			s.StartedAt.UTC().Format(time.DateTime))
		inserted += s.Inserted
		updated += s.Updated
		failed += s.Failed
	}

	fmt.Fprintf(&buf, "\n**Imports**: %d, **Inserted**: %d, **Updated**: %d, **Failed**: %d\n",
		len(summaries), inserted, updated, failed)
	return buf.Bytes()
}

// ToText renders one aligned line per import.
func ToText(summaries []models.ImportSummary) []byte {
	var buf bytes.Buffer
	for _, s := range summaries {
		fmt.Fprintf(&buf, "%s  %-11s  %4d found  %4d new  %4d updated  %4d failed  %s\n",
			s.ImportID, s.Status, s.Total, s.Inserted, s.Updated, s.Failed, playlistLabel(s))
	}
	return buf.Bytes()
}

// WriteFile renders summaries in format and writes them to path.
func WriteFile(path, format string, summaries []models.ImportSummary) error {
	data, err := Render(format, summaries)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func playlistLabel(s models.ImportSummary) string {
	if s.PlaylistName != nil && *s.PlaylistName != "" {
		return *s.PlaylistName
	}
	return s.PlaylistID
}

func statusLabel(s models.ImportSummary) string {
	if s.Status == models.ImportFailed && s.Error != "" {
		return fmt.Sprintf("%s (%s)", s.Status, escapeCell(s.Error))
	}
	return string(s.Status)
}

func completedAt(s models.ImportSummary, layout string) string {
	if s.CompletedAt == nil {
		return ""
	}
	return s.CompletedAt.UTC().Format(layout)
}

func escapeCell(v string) string {
	return strings.ReplaceAll(v, "|", `\|`)
}
