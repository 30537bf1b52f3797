package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

const connectionColumns = "id, user_id, platform, platform_user_id, token_id, playlists_synced_at, created_at, updated_at"

// ConnectionRepository persists [models.Connection] rows.
type ConnectionRepository struct {
	db DBTX
}

// NewConnectionRepository creates a new [ConnectionRepository] with the given database connection
func NewConnectionRepository(db DBTX) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Create inserts a connection, generating its ID when unset.
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	if conn.ID == "" {
		conn.ID = shared.GenerateID()
	}
	ts := utcNow()
	conn.CreatedAt, conn.UpdatedAt = ts, ts

	query := `
		INSERT INTO platform_connections (id, user_id, platform, platform_user_id, token_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		conn.ID, conn.UserID, conn.Platform, conn.PlatformUserID, conn.TokenID, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}
	return nil
}

// Get retrieves a connection by ID
func (r *ConnectionRepository) Get(ctx context.Context, id string) (*models.Connection, error) {
	query := "SELECT " + connectionColumns + " FROM platform_connections WHERE id = ?"
	conn, err := r.scanOne(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "connection", id)
	}
	return conn, nil
}

// GetByPlatformUser retrieves the connection for a platform account.
func (r *ConnectionRepository) GetByPlatformUser(ctx context.Context, platform models.Platform, platformUserID string) (*models.Connection, error) {
	query := "SELECT " + connectionColumns + " FROM platform_connections WHERE platform = ? AND platform_user_id = ?"
	conn, err := r.scanOne(r.db.QueryRowContext(ctx, query, platform, platformUserID))
	if err != nil {
		return nil, notFound(err, "connection", string(platform)+"/"+platformUserID)
	}
	return conn, nil
}

// ListByUser returns a user's connections ordered by platform.
func (r *ConnectionRepository) ListByUser(ctx context.Context, userID string) ([]*models.Connection, error) {
	query := "SELECT " + connectionColumns + " FROM platform_connections WHERE user_id = ? ORDER BY platform ASC"
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query connections: %w", err)
	}
	defer rows.Close()

	var conns []*models.Connection
	for rows.Next() {
		conn, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return conns, nil
}

// MarkPlaylistsSynced stamps the last successful playlist reconcile.
func (r *ConnectionRepository) MarkPlaylistsSynced(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE platform_connections SET playlists_synced_at = ?, updated_at = ? WHERE id = ?", at.UTC(), utcNow(), id)
	if err != nil {
		return fmt.Errorf("failed to mark connection synced: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("connection %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *ConnectionRepository) scanOne(row scanner) (*models.Connection, error) {
	var (
		conn   models.Connection
		synced sql.NullTime
	)
	err := row.Scan(&conn.ID, &conn.UserID, &conn.Platform, &conn.PlatformUserID, &conn.TokenID,
		&synced, &conn.CreatedAt, &conn.UpdatedAt)
	if err != nil {
		return nil, err
	}
	conn.PlaylistsSyncedAt = timePtr(synced)
	return &conn, nil
}
