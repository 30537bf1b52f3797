package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

// PlaylistItemRepository persists the ordered track listing of a playlist.
type PlaylistItemRepository struct {
	db DBTX
}

// NewPlaylistItemRepository creates a new [PlaylistItemRepository] with the given database connection
func NewPlaylistItemRepository(db DBTX) *PlaylistItemRepository {
	return &PlaylistItemRepository{db: db}
}

// Create inserts one item.
func (r *PlaylistItemRepository) Create(ctx context.Context, item *models.PlaylistItem) error {
	if item.ID == "" {
		item.ID = shared.GenerateID()
	}
	query := `INSERT INTO playlist_items (id, playlist_id, track_id, position, added_at) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, item.ID, item.PlaylistID, item.TrackID, item.Position, nullTime(item.AddedAt))
	if err != nil {
		return fmt.Errorf("failed to insert playlist item: %w", err)
	}
	return nil
}

// DeleteForPlaylist removes every item of a playlist and reports how many were removed.
func (r *PlaylistItemRepository) DeleteForPlaylist(ctx context.Context, playlistID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM playlist_items WHERE playlist_id = ?", playlistID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete playlist items: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return n, nil
}

// ListForPlaylist returns a playlist's items with their tracks, in position order.
func (r *PlaylistItemRepository) ListForPlaylist(ctx context.Context, playlistID string) ([]*models.PlaylistItem, error) {
	query := `
		SELECT pi.id, pi.playlist_id, pi.track_id, pi.position, pi.added_at,
			t.id, t.platform, t.platform_track_id, t.title, t.artist, t.album, t.duration_ms, t.duration_display,
			t.preview_url, t.external_url, t.image_url, t.created_at, t.updated_at
		FROM playlist_items pi
		JOIN tracks t ON t.id = pi.track_id
		WHERE pi.playlist_id = ?
		ORDER BY pi.position ASC
	`
	rows, err := r.db.QueryContext(ctx, query, playlistID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlist items: %w", err)
	}
	defer rows.Close()

	var items []*models.PlaylistItem
	for rows.Next() {
		var (
			item  models.PlaylistItem
			t     models.Track
			added sql.NullTime
		)
		err := rows.Scan(&item.ID, &item.PlaylistID, &item.TrackID, &item.Position, &added,
			&t.ID, &t.Platform, &t.PlatformTrackID, &t.Title, &t.Artist, &t.Album, &t.DurationMS, &t.DurationDisplay,
			&t.PreviewURL, &t.ExternalURL, &t.ImageURL, &t.CreatedAt, &t.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist item: %w", err)
		}
		item.AddedAt = timePtr(added)
		item.Track = &t
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return items, nil
}
