package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

// TokenRepository persists OAuth credentials.
type TokenRepository struct {
	db DBTX
}

// NewTokenRepository creates a new [TokenRepository] with the given database connection
func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts a token, generating its ID when unset.
func (r *TokenRepository) Create(ctx context.Context, token *models.Token) error {
	if token.ID == "" {
		token.ID = shared.GenerateID()
	}
	extra, err := marshalExtra(token.Extra)
	if err != nil {
		return err
	}
	ts := utcNow()
	token.CreatedAt, token.UpdatedAt = ts, ts

	query := `
		INSERT INTO platform_tokens (id, access_token, refresh_token, expires_at, extra_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.ExecContext(ctx, query,
		token.ID, token.AccessToken, nullString(token.RefreshToken), nullTime(token.ExpiresAt), extra, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}
	return nil
}

// Get retrieves a token by ID
func (r *TokenRepository) Get(ctx context.Context, id string) (*models.Token, error) {
	query := `
		SELECT id, access_token, refresh_token, expires_at, extra_data, created_at, updated_at
		FROM platform_tokens WHERE id = ?
	`
	var (
		token   models.Token
		refresh sql.NullString
		expires sql.NullTime
		extra   string
	)
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&token.ID, &token.AccessToken, &refresh, &expires, &extra, &token.CreatedAt, &token.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "token", id)
	}

	token.RefreshToken = refresh.String
	token.ExpiresAt = timePtr(expires)
	if extra != "" {
		if err := json.Unmarshal([]byte(extra), &token.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode token extra data: %w", err)
		}
	}
	return &token, nil
}

// Update writes the access token, refresh token, expiry and extra data in a single statement.
func (r *TokenRepository) Update(ctx context.Context, token *models.Token) error {
	extra, err := marshalExtra(token.Extra)
	if err != nil {
		return err
	}
	token.UpdatedAt = utcNow()

	query := `
		UPDATE platform_tokens
		SET access_token = ?, refresh_token = ?, expires_at = ?, extra_data = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		token.AccessToken, nullString(token.RefreshToken), nullTime(token.ExpiresAt), extra, token.UpdatedAt, token.ID)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("token %s: %w", token.ID, shared.ErrNotFound)
	}
	return nil
}

func marshalExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return "", fmt.Errorf("failed to encode token extra data: %w", err)
	}
	return string(b), nil
}
