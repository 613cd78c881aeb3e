package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/songcrate/internal/models"
	"github.com/desertthunder/songcrate/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgProgressUpdate MsgKind = iota
	MsgImportComplete
)

type importResult struct {
	summary *models.ImportSummary
	err     error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// importCompleteMsg is the constructor for [MsgImportComplete]
func importCompleteMsg(summary *models.ImportSummary, err error) Msg {
	return Msg{kind: MsgImportComplete, data: importResult{summary, err}}
}
