package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunelink/internal/formatter"
	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/repositories"
	"github.com/desertthunder/tunelink/internal/shared"
)

// PlaylistDetail is a stored playlist with its ordered items.
type PlaylistDetail struct {
	Playlist   *models.Playlist
	Connection *models.Connection
	Items      []*models.PlaylistItem
}

// Syncer mirrors remote playlists into storage.
type Syncer struct {
	resolver Resolver
	store    *repositories.Store
	now      func() time.Time
	logger   *log.Logger
}

// NewSyncer creates a syncer. A nil logger writes to stderr.
func NewSyncer(resolver Resolver, store *repositories.Store, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Syncer{resolver: resolver, store: store, now: time.Now, logger: logger}
}

// accessToken returns a usable access token for conn, refreshing it first when expired.
//
// Refresh writes through the pool, so it must never run while a transaction is open.
func (s *Syncer) accessToken(ctx context.Context, conn *models.Connection, progress chan<- ProgressUpdate) (string, error) {
	sendProgress(progress, refreshTokenUpdate(conn.Platform))

	auth, err := s.resolver.ResolveAuth(string(conn.Platform))
	if err != nil {
		return "", err
	}
	token, err := s.store.Tokens.Get(ctx, conn.TokenID)
	if err != nil {
		return "", fmt.Errorf("failed to load token for connection %s: %w", conn.ID, err)
	}
	return auth.Refresh(ctx, token)
}

// SyncPlaylists fetches every playlist of conn, reconciles them and returns the stored playlists
// of the connection ordered by name.
func (s *Syncer) SyncPlaylists(ctx context.Context, conn *models.Connection, progress chan<- ProgressUpdate) ([]*models.Playlist, error) {
	svc, err := s.resolver.ResolveSync(conn)
	if err != nil {
		return nil, err
	}

	access, err := s.accessToken(ctx, conn, progress)
	if err != nil {
		return nil, err
	}

	sendProgress(progress, fetchPlaylistsUpdate(conn.Platform))
	records, err := svc.FetchPlaylists(ctx, access)
	if err != nil {
		return nil, err
	}

	if _, err := s.ReconcilePlaylists(ctx, conn, records); err != nil {
		return nil, err
	}
	sendProgress(progress, reconcilePlaylistsUpdate(len(records)))

	return s.store.Playlists.ListByConnection(ctx, conn.ID)
}

// ReconcilePlaylists upserts records under conn in one transaction and stamps the connection's
// sync time. Stored playlists missing from records are left alone.
func (s *Syncer) ReconcilePlaylists(ctx context.Context, conn *models.Connection, records []models.RemotePlaylist) ([]*models.Playlist, error) {
	playlists := make([]*models.Playlist, 0, len(records))
	created := 0

	err := s.store.WithTx(ctx, func(tx *repositories.Store) error {
		for _, rec := range records {
			p := &models.Playlist{
				ExternalID:     rec.ExternalID,
				Name:           rec.Name,
				SnapshotID:     rec.SnapshotID,
				IsPublic:       rec.Public(),
				Platform:       conn.Platform,
				PlatformUserID: conn.PlatformUserID,
				ConnectionID:   conn.ID,
			}
			isNew, err := tx.Playlists.Upsert(ctx, p)
			if err != nil {
				return fmt.Errorf("failed to save playlist %s: %w", rec.ExternalID, err)
			}
			if isNew {
				created++
			}
			playlists = append(playlists, p)
		}
		return tx.Connections.MarkPlaylistsSynced(ctx, conn.ID, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("reconciled playlists",
		"platform", conn.Platform, "connection", conn.ID, "total", len(playlists), "created", created)
	return playlists, nil
}

// ReconcileTracks replaces every item of pl with records in fetched order, in one transaction.
// Records without a track id are skipped and do not take a position.
func (s *Syncer) ReconcileTracks(ctx context.Context, pl *models.Playlist, records []models.RemoteTrack) ([]*models.PlaylistItem, error) {
	items := make([]*models.PlaylistItem, 0, len(records))
	at := s.now().UTC()
	var removed int64

	err := s.store.WithTx(ctx, func(tx *repositories.Store) error {
		var err error
		if removed, err = tx.PlaylistItems.DeleteForPlaylist(ctx, pl.ID); err != nil {
			return err
		}

		for _, rec := range records {
			if rec.PlatformTrackID == "" {
				continue
			}

			track := &models.Track{
				Platform:        pl.Platform,
				PlatformTrackID: rec.PlatformTrackID,
				Title:           rec.Title,
				Artist:          formatter.JoinArtists(rec.Artists),
				Album:           rec.Album,
				DurationMS:      rec.DurationMS,
				DurationDisplay: shared.FormatDuration(rec.DurationMS),
				PreviewURL:      rec.PreviewURL,
				ExternalURL:     rec.ExternalURL,
				ImageURL:        rec.ImageURL,
			}
			if err := tx.Tracks.Upsert(ctx, track); err != nil {
				return fmt.Errorf("failed to save track %s: %w", rec.PlatformTrackID, err)
			}

			item := &models.PlaylistItem{
				PlaylistID: pl.ID,
				TrackID:    track.ID,
				Position:   len(items),
				AddedAt:    rec.AddedAt,
				Track:      track,
			}
			if err := tx.PlaylistItems.Create(ctx, item); err != nil {
				return err
			}
			items = append(items, item)
		}

		return tx.Playlists.MarkTracksSynced(ctx, pl.ID, at)
	})
	if err != nil {
		return nil, err
	}

	pl.TracksSyncedAt = &at
	s.logger.Info("reconciled tracks",
		"playlist", pl.ID, "kept", len(items), "skipped", len(records)-len(items), "replaced", removed)
	return items, nil
}

// SyncPlaylistDetail refreshes the track listing of a stored playlist on behalf of viewerID.
//
// Only the owner of the playlist's connection and their accepted friends may view it; anyone else
// gets [shared.ErrForbidden]. The owner's token is used for the fetch.
func (s *Syncer) SyncPlaylistDetail(ctx context.Context, viewerID, playlistID string, progress chan<- ProgressUpdate) (*PlaylistDetail, error) {
	detail, err := s.authorize(ctx, viewerID, playlistID)
	if err != nil {
		return nil, err
	}

	svc, err := s.resolver.ResolveSync(detail.Connection)
	if err != nil {
		return nil, err
	}

	access, err := s.accessToken(ctx, detail.Connection, progress)
	if err != nil {
		return nil, err
	}

	sendProgress(progress, fetchTracksUpdate(detail.Playlist))
	records, err := svc.FetchTracks(ctx, access, detail.Playlist.ExternalID)
	if err != nil {
		return nil, err
	}

	if _, err := s.ReconcileTracks(ctx, detail.Playlist, records); err != nil {
		return nil, err
	}

	detail.Items, err = s.store.PlaylistItems.ListForPlaylist(ctx, detail.Playlist.ID)
	if err != nil {
		return nil, err
	}
	sendProgress(progress, reconcileTracksUpdate(detail.Playlist, len(detail.Items), len(records)))
	return detail, nil
}

// StoredPlaylistDetail returns the stored items of a playlist without contacting the platform.
// The same visibility rule as [Syncer.SyncPlaylistDetail] applies.
func (s *Syncer) StoredPlaylistDetail(ctx context.Context, viewerID, playlistID string) (*PlaylistDetail, error) {
	detail, err := s.authorize(ctx, viewerID, playlistID)
	if err != nil {
		return nil, err
	}
	detail.Items, err = s.store.PlaylistItems.ListForPlaylist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *Syncer) authorize(ctx context.Context, viewerID, playlistID string) (*PlaylistDetail, error) {
	pl, err := s.store.Playlists.Get(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	conn, err := s.store.Connections.Get(ctx, pl.ConnectionID)
	if err != nil {
		return nil, err
	}

	if conn.UserID != viewerID {
		ok, err := s.store.Friends.AreFriends(ctx, viewerID, conn.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: playlist %s is visible to its owner and their friends", shared.ErrForbidden, playlistID)
		}
	}

	return &PlaylistDetail{Playlist: pl, Connection: conn}, nil
}
