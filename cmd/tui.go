package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunelink/internal/formatter"
	"github.com/desertthunder/tunelink/internal/shared"
	"github.com/desertthunder/tunelink/internal/tasks"
	"github.com/desertthunder/tunelink/internal/ui"
)

// Browse launches the interactive playlist browser for one connection.
func (r *Runner) Browse(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	store, err := r.Store()
	if err != nil {
		return err
	}
	conn, err := store.Connections.Get(ctx, cmd.String("connection"))
	if err != nil {
		return err
	}
	syncer, err := r.Syncer()
	if err != nil {
		return err
	}

	opts := tasks.ExportOpts{Format: format, OutputDir: cmd.String("output")}
	model := ui.NewModel(ctx, syncer, conn, opts)
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
