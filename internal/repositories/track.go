package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

const trackColumns = `id, platform, platform_track_id, title, artist, album, duration_ms, duration_display,
	preview_url, external_url, image_url, created_at, updated_at`

// TrackRepository persists tracks, deduplicated globally by (platform, platform_track_id).
type TrackRepository struct {
	db DBTX
}

// NewTrackRepository creates a new TrackRepository with the given database connection
func NewTrackRepository(db DBTX) *TrackRepository {
	return &TrackRepository{db: db}
}

// Upsert refreshes the metadata of an existing track or inserts a new one. The stored ID is
// written back into t.
func (r *TrackRepository) Upsert(ctx context.Context, t *models.Track) error {
	if t.DurationDisplay == "" {
		t.DurationDisplay = shared.FormatDuration(t.DurationMS)
	}

	existing, err := r.GetByPlatformID(ctx, t.Platform, t.PlatformTrackID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return r.create(ctx, t)
	case err != nil:
		return err
	}

	ts := utcNow()
	query := `
		UPDATE tracks
		SET title = ?, artist = ?, album = ?, duration_ms = ?, duration_display = ?,
			preview_url = ?, external_url = ?, image_url = ?, updated_at = ?
		WHERE id = ?
	`
	_, err = r.db.ExecContext(ctx, query, t.Title, t.Artist, t.Album, t.DurationMS, t.DurationDisplay,
		t.PreviewURL, t.ExternalURL, t.ImageURL, ts, existing.ID)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}

	t.ID = existing.ID
	t.CreatedAt = existing.CreatedAt
	t.UpdatedAt = ts
	return nil
}

func (r *TrackRepository) create(ctx context.Context, t *models.Track) error {
	if t.ID == "" {
		t.ID = shared.GenerateID()
	}
	ts := utcNow()
	t.CreatedAt, t.UpdatedAt = ts, ts

	query := `
		INSERT INTO tracks (id, platform, platform_track_id, title, artist, album, duration_ms, duration_display,
			preview_url, external_url, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query, t.ID, t.Platform, t.PlatformTrackID, t.Title, t.Artist, t.Album,
		t.DurationMS, t.DurationDisplay, t.PreviewURL, t.ExternalURL, t.ImageURL, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert track: %w", err)
	}
	return nil
}

// Get retrieves a track by ID
func (r *TrackRepository) Get(ctx context.Context, id string) (*models.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks WHERE id = ?"
	t, err := r.scanOne(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "track", id)
	}
	return t, nil
}

// GetByPlatformID retrieves a track by its platform identity.
func (r *TrackRepository) GetByPlatformID(ctx context.Context, platform models.Platform, platformTrackID string) (*models.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks WHERE platform = ? AND platform_track_id = ?"
	t, err := r.scanOne(r.db.QueryRowContext(ctx, query, platform, platformTrackID))
	if err != nil {
		return nil, notFound(err, "track", platformTrackID)
	}
	return t, nil
}

// Count returns the number of stored tracks.
func (r *TrackRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracks").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}

func (r *TrackRepository) scanOne(row scanner) (*models.Track, error) {
	var t models.Track
	err := row.Scan(&t.ID, &t.Platform, &t.PlatformTrackID, &t.Title, &t.Artist, &t.Album, &t.DurationMS,
		&t.DurationDisplay, &t.PreviewURL, &t.ExternalURL, &t.ImageURL, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
