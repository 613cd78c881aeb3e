package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/songcrate/internal/formatter"
	"github.com/desertthunder/songcrate/internal/models"
	"github.com/desertthunder/songcrate/internal/shared"
	"github.com/desertthunder/songcrate/internal/tasks"
	"github.com/desertthunder/songcrate/internal/ui"
	"github.com/urfave/cli/v3"
)

// tuiLogPath receives logs while the terminal belongs to the interactive view.
const tuiLogPath = "./tmp/songcrate-tui.log"

// Import fetches a playlist and upserts its tracks into the catalog.
func (r *Runner) Import(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.StringArg("ref")
	if ref == "" {
		return fmt.Errorf("%w: playlist URL or URI is required", shared.ErrMissingArgument)
	}
	owner := ownerFlag(cmd)

	var summary *models.ImportSummary
	var err error
	if cmd.Bool("tui") {
		summary, err = r.importTUI(ctx, owner, ref)
	} else {
		summary, err = r.importPlain(ctx, owner, ref, !cmd.Bool("json"))
	}

	if summary == nil {
		return err
	}
	if cmd.Bool("json") {
		if werr := r.writeJSON(summary, cmd.Bool("pretty")); werr != nil {
			return werr
		}
	} else {
		r.writeSummary(summary)
	}
	return err
}

func (r *Runner) importPlain(ctx context.Context, owner, ref string, verbose bool) (*models.ImportSummary, error) {
	if !verbose {
		return r.importer.Import(ctx, owner, ref, nil)
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for update := range progress {
			if update.Message != "" {
				r.writePlain("%s\n", update.Message)
			}
		}
	}()

	summary, err := r.importer.Import(ctx, owner, ref, progress)
	close(progress)
	wg.Wait()
	return summary, err
}

func (r *Runner) importTUI(ctx context.Context, owner, ref string) (*models.ImportSummary, error) {
	logger, closer, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	logger.SetLevel(r.logger.GetLevel())

	importer, err := r.newImporter(logger)
	if err != nil {
		return nil, err
	}

	model := ui.NewModel(ctx, "Importing "+ref, func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*models.ImportSummary, error) {
		return importer.Import(ctx, owner, ref, progress)
	})
	if _, err := tea.NewProgram(model).Run(); err != nil {
		return nil, fmt.Errorf("failed to run TUI: %w", err)
	}
	return model.Result()
}

func (r *Runner) writeSummary(s *models.ImportSummary) {
	name := s.PlaylistID
	if s.PlaylistName != nil {
		name = *s.PlaylistName
	}

	r.writePlainHeader(fmt.Sprintf("Import %s: %s", s.Status, name))
	r.writePlain("ID:        %s\n", s.ImportID)
	r.writePlain("Playlist:  %s\n", s.PlaylistID)
	r.writePlain("Found:     %d\n", s.Total)
	r.writePlain("Inserted:  %d\n", s.Inserted)
	r.writePlain("Updated:   %d\n", s.Updated)
	r.writePlain("Failed:    %d\n", s.Failed)
	r.writePlain("Started:   %s\n", s.StartedAt.Local().Format(time.DateTime))
	if s.CompletedAt != nil {
		r.writePlain("Completed: %s\n", s.CompletedAt.Local().Format(time.DateTime))
	}
	if s.Error != "" {
		r.writePlain("Error:     %s\n", s.Error)
	}
}

// ImportsList prints the owner's most recent imports.
func (r *Runner) ImportsList(ctx context.Context, cmd *cli.Command) error {
	owner := ownerFlag(cmd)

	summaries, err := r.catalog.ListImports(ctx, owner, int(cmd.Int("limit")))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(summaries, false)
	}

	format := cmd.String("format")
	if path := cmd.String("output"); path != "" {
		if err := formatter.WriteFile(path, format, summaries); err != nil {
			return err
		}
		return r.writePlain("✓ Wrote %d imports to %s\n", len(summaries), path)
	}

	if len(summaries) == 0 && format == formatter.FormatText {
		return r.writePlain("No imports for %s\n", owner)
	}
	data, err := formatter.Render(format, summaries)
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

// ImportsShow prints one import summary belonging to the owner.
func (r *Runner) ImportsShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("id")
	if id == "" {
		return fmt.Errorf("%w: import id is required", shared.ErrMissingArgument)
	}

	summary, err := r.catalog.GetImport(ctx, id)
	if err != nil {
		return err
	}
	if summary.OwnerID != ownerFlag(cmd) {
		return fmt.Errorf("%w: import %s belongs to another owner", shared.ErrAccessDenied, id)
	}

	if cmd.Bool("json") {
		return r.writeJSON(summary, true)
	}
	r.writeSummary(summary)
	return nil
}
