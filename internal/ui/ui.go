package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/songcrate/internal/models"
	"github.com/desertthunder/songcrate/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	ImportView ViewState = iota
	ResultView
)

// RunFunc starts an import that reports to progress. The model never closes progress itself.
type RunFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.ImportSummary, error)

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	view         ViewState
	title        string
	run          RunFunc
	width        int
	height       int
	progressChan chan tasks.ProgressUpdate
	doneChan     chan importResult
	progress     tasks.ProgressUpdate
	items        []list.Item
	trackList    list.Model
	spinner      spinner.Model
	bar          progress.Model
	summary      *models.ImportSummary
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a model that runs an import as soon as the program starts.
func NewModel(ctx context.Context, title string, run RunFunc) *Model {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.ok

	return &Model{
		ctx:     ctx,
		cancel:  cancel,
		view:    ImportView,
		title:   title,
		run:     run,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient()),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Result returns the import's outcome once the program has exited.
//
// An import interrupted by quitting reports [context.Canceled].
func (m *Model) Result() (*models.ImportSummary, error) {
	if m.view != ResultView {
		return nil, context.Canceled
	}
	return m.summary, m.err
}

// Init starts the spinner and the import.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.startImport())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = max(msg.Width-8, 10)
		if m.view == ResultView {
			m.trackList.SetSize(msg.Width-4, msg.Height-12)
		}
		return m, nil

	case tea.KeyMsg:
		if m.view == ResultView && m.trackList.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			m.cancel()
			return m, tea.Quit
		}

	case spinner.TickMsg:
		if m.view != ImportView {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			update := msg.data.(tasks.ProgressUpdate)
			m.progress = update
			if update.Phase == tasks.ImportTrack {
				track, _ := update.Data.(*models.Track)
				m.items = append(m.items, trackItem{track: track, outcome: outcomeOf(update.Message)})
			}
			return m, m.waitForProgress()
		case MsgImportComplete:
			result := msg.data.(importResult)
			m.summary = result.summary
			m.err = result.err
			m.view = ResultView
			m.trackList = list.New(m.items, list.NewDefaultDelegate(), max(m.width-4, 20), max(m.height-12, 10))
			m.trackList.Title = "Imported tracks"
			return m, nil
		}
	}

	if m.view == ResultView {
		var cmd tea.Cmd
		m.trackList, cmd = m.trackList.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case ImportView:
		return m.renderImport()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) startImport() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.doneChan = make(chan importResult, 1)

	go func() {
		summary, err := m.run(m.ctx, m.progressChan)
		m.doneChan <- importResult{summary, err}
		close(m.progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, doneChan := m.progressChan, m.doneChan
	return func() tea.Msg {
		update, ok := <-progressChan
		if !ok {
			result := <-doneChan
			return importCompleteMsg(result.summary, result.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderImport() string {
	title := styles.title.Render(m.title)
	status := fmt.Sprintf("%s %s", m.spinner.View(), m.progress.Message)
	if m.progress.Message == "" {
		status = fmt.Sprintf("%s Connecting to Spotify...", m.spinner.View())
	}

	var bar string
	if m.progress.Total > 0 {
		bar = "\n\n" + m.bar.ViewAs(float64(m.progress.Step)/float64(m.progress.Total))
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, status, bar, m.help.View(m.keys))
}

func (m *Model) renderResult() string {
	var b strings.Builder

	switch {
	case m.err != nil:
		b.WriteString(styles.err.Render(fmt.Sprintf("✗ Import failed: %v", m.err)))
	case m.summary == nil:
		b.WriteString(styles.err.Render("No result available"))
	default:
		b.WriteString(styles.ok.Render("✓ Import Complete!"))
	}
	b.WriteString("\n\n")

	if s := m.summary; s != nil {
		if s.PlaylistName != nil {
			fmt.Fprintf(&b, "%s%s\n", styles.stat.Render("Playlist"), *s.PlaylistName)
		}
		fmt.Fprintf(&b, "%s%d\n", styles.stat.Render("Found"), s.Total)
		fmt.Fprintf(&b, "%s%d\n", styles.stat.Render("Inserted"), s.Inserted)
		fmt.Fprintf(&b, "%s%d\n", styles.stat.Render("Updated"), s.Updated)
		failed := fmt.Sprintf("%d", s.Failed)
		if s.Failed > 0 {
			failed = styles.warn.Render(failed)
		}
		fmt.Fprintf(&b, "%s%s\n", styles.stat.Render("Failed"), failed)
		fmt.Fprintf(&b, "%s%s\n\n", styles.stat.Render("Import"), styles.help.Render(s.ImportID))
	}

	if len(m.items) > 0 {
		b.WriteString(m.trackList.View())
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// outcomeOf pulls the outcome word out of an ImportTrack message ("[3/10] inserted Title").
func outcomeOf(message string) string {
	fields := strings.Fields(message)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}
