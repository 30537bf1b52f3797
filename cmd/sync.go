package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunelink/internal/formatter"
	"github.com/desertthunder/tunelink/internal/shared"
)

// SyncPlaylists pulls a connection's playlists into the database.
func (r *Runner) SyncPlaylists(ctx context.Context, cmd *cli.Command) error {
	syncer, err := r.Syncer()
	if err != nil {
		return err
	}
	store, err := r.Store()
	if err != nil {
		return err
	}
	conn, err := store.Connections.Get(ctx, cmd.String("connection"))
	if err != nil {
		return err
	}

	progress, stop := r.watchProgress()
	playlists, err := syncer.SyncPlaylists(ctx, conn, progress)
	stop()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(playlists, cmd.Bool("pretty"))
	}

	r.writePlainln("")
	r.writePlainHeader(fmt.Sprintf("%s Playlists (%d)", conn.Platform.Title(), len(playlists)))
	for _, p := range playlists {
		r.writePlain("%s  %s %s\n", p.ID, p.Name, mutedStyle.Render(formatter.Visibility(p.IsPublic)))
	}
	return nil
}

// SyncTracks replaces a playlist's stored tracks with the platform's current listing.
//
// --viewer defaults to the playlist's owner.
func (r *Runner) SyncTracks(ctx context.Context, cmd *cli.Command) error {
	syncer, err := r.Syncer()
	if err != nil {
		return err
	}
	viewer, err := r.viewerFor(ctx, cmd.String("viewer"), cmd.String("playlist"))
	if err != nil {
		return err
	}

	progress, stop := r.watchProgress()
	detail, err := syncer.SyncPlaylistDetail(ctx, viewer, cmd.String("playlist"), progress)
	stop()
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(detail.Items, cmd.Bool("pretty"))
	}

	r.writePlainln("")
	r.writePlainHeader(fmt.Sprintf("%s (%d tracks)", detail.Playlist.Name, len(detail.Items)))
	for _, item := range detail.Items {
		if t := item.Track; t != nil {
			r.writePlain("%3d. %s - %s %s\n", item.Position+1, t.Artist, t.Title, mutedStyle.Render("["+t.DurationDisplay+"]"))
		}
	}
	return nil
}

// viewerFor returns viewer, or the owner of playlistID when viewer is empty.
func (r *Runner) viewerFor(ctx context.Context, viewer, playlistID string) (string, error) {
	if viewer != "" {
		return viewer, nil
	}
	if playlistID == "" {
		return "", fmt.Errorf("%w: playlist", shared.ErrMissingArgument)
	}
	store, err := r.Store()
	if err != nil {
		return "", err
	}
	pl, err := store.Playlists.Get(ctx, playlistID)
	if err != nil {
		return "", err
	}
	conn, err := store.Connections.Get(ctx, pl.ConnectionID)
	if err != nil {
		return "", err
	}
	return conn.UserID, nil
}
