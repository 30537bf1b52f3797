package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

const playlistColumns = `id, external_id, name, snapshot_id, is_public, platform, platform_user_id,
	connection_id, tracks_synced_at, created_at, updated_at`

// PlaylistRepository persists mirrored playlists.
type PlaylistRepository struct {
	db DBTX
}

// NewPlaylistRepository creates a new [PlaylistRepository] with the given database connection
func NewPlaylistRepository(db DBTX) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Upsert matches on (platform, platform_user_id, external_id). An existing row gets the new name,
// snapshot and visibility; otherwise the playlist is inserted. The stored row is written back into p.
func (r *PlaylistRepository) Upsert(ctx context.Context, p *models.Playlist) (created bool, err error) {
	existing, err := r.GetByExternalID(ctx, p.Platform, p.PlatformUserID, p.ExternalID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return true, r.create(ctx, p)
	case err != nil:
		return false, err
	}

	ts := utcNow()
	query := `UPDATE playlists SET name = ?, snapshot_id = ?, is_public = ?, updated_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, p.Name, nullString(p.SnapshotID), p.IsPublic, ts, existing.ID); err != nil {
		return false, fmt.Errorf("failed to update playlist: %w", err)
	}

	p.ID = existing.ID
	p.ConnectionID = existing.ConnectionID
	p.TracksSyncedAt = existing.TracksSyncedAt
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = ts
	return false, nil
}

func (r *PlaylistRepository) create(ctx context.Context, p *models.Playlist) error {
	if p.ID == "" {
		p.ID = shared.GenerateID()
	}
	ts := utcNow()
	p.CreatedAt, p.UpdatedAt = ts, ts

	query := `
		INSERT INTO playlists (id, external_id, name, snapshot_id, is_public, platform, platform_user_id,
			connection_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.ExternalID, p.Name, nullString(p.SnapshotID), p.IsPublic,
		p.Platform, p.PlatformUserID, p.ConnectionID, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert playlist: %w", err)
	}
	return nil
}

// Get retrieves a playlist by ID
func (r *PlaylistRepository) Get(ctx context.Context, id string) (*models.Playlist, error) {
	query := "SELECT " + playlistColumns + " FROM playlists WHERE id = ?"
	p, err := r.scanOne(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("playlist %s: %w", id, shared.ErrPlaylistNotFound)
		}
		return nil, fmt.Errorf("failed to query playlist: %w", err)
	}
	return p, nil
}

// GetByExternalID retrieves a playlist by its upsert key.
func (r *PlaylistRepository) GetByExternalID(ctx context.Context, platform models.Platform, platformUserID, externalID string) (*models.Playlist, error) {
	query := "SELECT " + playlistColumns + " FROM playlists WHERE platform = ? AND platform_user_id = ? AND external_id = ?"
	p, err := r.scanOne(r.db.QueryRowContext(ctx, query, platform, platformUserID, externalID))
	if err != nil {
		return nil, notFound(err, "playlist", externalID)
	}
	return p, nil
}

// ListByConnection returns a connection's playlists ordered by name.
func (r *PlaylistRepository) ListByConnection(ctx context.Context, connectionID string) ([]*models.Playlist, error) {
	query := "SELECT " + playlistColumns + " FROM playlists WHERE connection_id = ? ORDER BY name COLLATE NOCASE ASC, id ASC"
	rows, err := r.db.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query playlists: %w", err)
	}
	defer rows.Close()

	var playlists []*models.Playlist
	for rows.Next() {
		p, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return playlists, nil
}

// MarkTracksSynced stamps the last successful track reconcile.
func (r *PlaylistRepository) MarkTracksSynced(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE playlists SET tracks_synced_at = ?, updated_at = ? WHERE id = ?", at.UTC(), utcNow(), id)
	if err != nil {
		return fmt.Errorf("failed to mark playlist synced: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("playlist %s: %w", id, shared.ErrPlaylistNotFound)
	}
	return nil
}

func (r *PlaylistRepository) scanOne(row scanner) (*models.Playlist, error) {
	var (
		p        models.Playlist
		snapshot sql.NullString
		synced   sql.NullTime
	)
	err := row.Scan(&p.ID, &p.ExternalID, &p.Name, &snapshot, &p.IsPublic, &p.Platform, &p.PlatformUserID,
		&p.ConnectionID, &synced, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.SnapshotID = snapshot.String
	p.TracksSyncedAt = timePtr(synced)
	return &p, nil
}
