package ui

import (
	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/songcrate/internal/models"
)

var _ list.Item = trackItem{}

// trackItem pairs an imported [models.Track] with how the import treated it.
type trackItem struct {
	track   *models.Track
	outcome string
}

func (i trackItem) FilterValue() string { return i.Title() }

func (i trackItem) Title() string {
	if i.track == nil {
		return "(unavailable track)"
	}
	return i.track.Title
}

func (i trackItem) Description() string {
	if i.track == nil {
		return "local or removed from Spotify"
	}
	desc := i.outcome
	if i.track.Album != "" {
		desc += " • " + i.track.Album
	}
	return desc
}
