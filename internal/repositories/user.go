package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

const userColumns = "id, username, display_name, is_admin, created_at, updated_at"

// UserRepository persists [models.User] rows.
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new [UserRepository] with the given database connection
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user, generating its ID when unset.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = shared.GenerateID()
	}
	ts := utcNow()
	user.CreatedAt, user.UpdatedAt = ts, ts

	query := `INSERT INTO users (id, username, display_name, is_admin, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, nullString(user.Username), user.DisplayName, user.IsAdmin, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// Get retrieves a user by ID
func (r *UserRepository) Get(ctx context.Context, id string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE id = ?"
	user, err := r.scanOne(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return user, nil
}

// GetByUsername retrieves a user by public handle
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE username = ?"
	user, err := r.scanOne(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, notFound(err, "user", username)
	}
	return user, nil
}

// SetUsername assigns a validated, unique public handle.
func (r *UserRepository) SetUsername(ctx context.Context, id, username string) error {
	username = strings.TrimSpace(username)
	if err := shared.ValidateUsername(username); err != nil {
		return err
	}

	var taken bool
	q := "SELECT EXISTS(SELECT 1 FROM users WHERE username = ? AND id != ?)"
	if err := r.db.QueryRowContext(ctx, q, username, id).Scan(&taken); err != nil {
		return fmt.Errorf("failed to check username: %w", err)
	}
	if taken {
		return fmt.Errorf("%w: username %q is already taken", shared.ErrConflict, username)
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE users SET username = ?, updated_at = ? WHERE id = ?", username, utcNow(), id)
	if err != nil {
		return fmt.Errorf("failed to update username: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// Search finds users with a handle or display name containing query, skipping excludeID.
func (r *UserRepository) Search(ctx context.Context, query, excludeID string, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + likeEscaper.Replace(strings.TrimSpace(query)) + "%"
	q := "SELECT " + userColumns + ` FROM users
		WHERE username IS NOT NULL AND id != ?
			AND (username LIKE ? ESCAPE '\' OR display_name LIKE ? ESCAPE '\')
		ORDER BY username ASC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, q, excludeID, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return users, nil
}

func (r *UserRepository) scanOne(row scanner) (*models.User, error) {
	var (
		user     models.User
		username sql.NullString
	)
	if err := row.Scan(&user.ID, &username, &user.DisplayName, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.Username = username.String
	return &user, nil
}
