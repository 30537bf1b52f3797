package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunelink/internal/formatter"
	"github.com/desertthunder/tunelink/internal/shared"
	"github.com/desertthunder/tunelink/internal/tasks"
)

// Export writes playlists to files. Without playlist arguments every playlist of --user is exported.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	userID := cmd.String("user")
	if userID == "" {
		return fmt.Errorf("%w: --user", shared.ErrMissingArgument)
	}

	store, err := r.Store()
	if err != nil {
		return err
	}
	syncer, err := r.Syncer()
	if err != nil {
		return err
	}

	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		conns, err := store.Connections.ListByUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, c := range conns {
			playlists, err := store.Playlists.ListByConnection(ctx, c.ID)
			if err != nil {
				return err
			}
			for _, p := range playlists {
				ids = append(ids, p.ID)
			}
		}
	}
	if len(ids) == 0 {
		return r.writePlain("Nothing to export. Run 'tunelink sync playlists' first.\n")
	}

	opts := tasks.ExportOpts{
		Format:     format,
		OutputDir:  cmd.String("output"),
		NumWorkers: int(cmd.Int("workers")),
		Refresh:    cmd.Bool("refresh"),
		RateLimit:  r.config.Sync.RequestsPerSecond,
	}

	r.writePlain("Exporting %d playlists as %s...\n\n", len(ids), format)
	progress, stop := r.watchProgress()
	result, err := syncer.BulkExport(ctx, progress, userID, ids, opts)
	stop()
	if err != nil {
		return err
	}

	r.writePlainln("")
	r.writePlainHeader("Export Complete")
	r.writePlain("Exported: %s\n", okStyle.Render(fmt.Sprintf("%d/%d", result.SuccessfulExports, result.TotalPlaylists)))
	if result.FailedExports > 0 {
		r.writePlain("Failed:   %s\n", errStyle.Render(fmt.Sprintf("%d", result.FailedExports)))
	}
	r.writePlain("Output:   %s\n", result.OutputDirectory)
	r.writePlain("Manifest: %s\n", result.ManifestPath)
	return nil
}
