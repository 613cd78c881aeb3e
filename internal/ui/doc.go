// Package ui implements the live import view using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [ImportView] : spinner, progress bar and the latest [tasks.ProgressUpdate] message
//  2. [ResultView] : the committed summary and a filterable list of every track the run touched
//
// The [Model] starts the import in a goroutine and reads its progress channel one message at a time,
// so the run's non-blocking sends are never held up by rendering.
package ui
