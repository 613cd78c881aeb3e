package tasks

import (
	"fmt"

	"github.com/desertthunder/songcrate/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	ImportStart Phase = iota
	ImportPage
	ImportTrack
	ImportDone
	ImportFailed
)

func (p Phase) String() string {
	switch p {
	case ImportStart:
		return "import_start"
	case ImportPage:
		return "import_page"
	case ImportTrack:
		return "import_track"
	case ImportDone:
		return "import_done"
	case ImportFailed:
		return "import_failed"
	default:
		return ""
	}
}

// Terminal reports whether no further updates follow.
func (p Phase) Terminal() bool {
	return p == ImportDone || p == ImportFailed
}

// sendProgress never blocks; a slow reader misses intermediate updates.
func sendProgress(progress chan<- ProgressUpdate, u ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- u:
	default:
	}
}

func importStartUpdate(playlistID string, name *string) ProgressUpdate {
	label := playlistID
	if name != nil && *name != "" {
		label = *name
	}
	return ProgressUpdate{
		Phase:   ImportStart,
		Message: fmt.Sprintf("Importing playlist %s...", label),
	}
}

func pageUpdate(offset, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportPage,
		Step:    offset,
		Total:   total,
		Message: fmt.Sprintf("Fetched tracks %d-%d of %d", offset+1, min(offset+pageSize, total), total),
	}
}

func trackUpdate(step, total int, tr *models.Track, outcome string) ProgressUpdate {
	if tr == nil {
		return ProgressUpdate{
			Phase:   ImportTrack,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ unavailable track", step, total),
		}
	}
	return ProgressUpdate{
		Phase:   ImportTrack,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s %s", step, total, outcome, tr.Title),
		Data:    tr,
	}
}

func doneUpdate(s models.ImportSummary) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportDone,
		Step:    s.Processed(),
		Total:   s.Total,
		Message: fmt.Sprintf("✓ %d inserted, %d updated, %d failed", s.Inserted, s.Updated, s.Failed),
		Data:    s,
	}
}

func failedUpdate(s models.ImportSummary, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ImportFailed,
		Step:    s.Processed(),
		Total:   s.Total,
		Message: fmt.Sprintf("✗ import failed: %v", err),
		Data:    s,
	}
}
