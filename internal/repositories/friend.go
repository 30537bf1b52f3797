package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

const friendColumns = "id, requester_id, receiver_id, status, created_at, updated_at"

// FriendRepository persists friend-request edges.
type FriendRepository struct {
	db DBTX
}

// NewFriendRepository creates a new [FriendRepository] with the given database connection
func NewFriendRepository(db DBTX) *FriendRepository {
	return &FriendRepository{db: db}
}

// Between returns the edge joining a and b in either direction.
func (r *FriendRepository) Between(ctx context.Context, a, b string) (*models.Friend, error) {
	query := "SELECT " + friendColumns + ` FROM friends
		WHERE (requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)
		LIMIT 1`
	f, err := r.scanOne(r.db.QueryRowContext(ctx, query, a, b, b, a))
	if err != nil {
		return nil, notFound(err, "friend", a+"/"+b)
	}
	return f, nil
}

// Request creates a pending edge from requesterID to receiverID.
//
// An accepted or pending edge in either direction blocks the request. A rejected edge is
// replaced. Run inside [Store.WithTx] so the replacement is atomic.
func (r *FriendRepository) Request(ctx context.Context, requesterID, receiverID string) (*models.Friend, error) {
	if requesterID == receiverID {
		return nil, fmt.Errorf("%w: cannot send a friend request to yourself", shared.ErrFriendRequest)
	}

	existing, err := r.Between(ctx, requesterID, receiverID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
	case err != nil:
		return nil, err
	case existing.Status == models.FriendAccepted:
		return nil, fmt.Errorf("%w: already friends", shared.ErrFriendRequest)
	case existing.Status == models.FriendPending && existing.RequesterID == requesterID:
		return nil, fmt.Errorf("%w: request already sent", shared.ErrFriendRequest)
	case existing.Status == models.FriendPending:
		return nil, fmt.Errorf("%w: a request from this user is already waiting for you", shared.ErrFriendRequest)
	default:
		if _, err := r.db.ExecContext(ctx, "DELETE FROM friends WHERE id = ?", existing.ID); err != nil {
			return nil, fmt.Errorf("failed to clear rejected request: %w", err)
		}
	}

	ts := utcNow()
	f := &models.Friend{
		ID:          shared.GenerateID(),
		RequesterID: requesterID,
		ReceiverID:  receiverID,
		Status:      models.FriendPending,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	query := `INSERT INTO friends (id, requester_id, receiver_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, f.ID, f.RequesterID, f.ReceiverID, f.Status, ts, ts); err != nil {
		return nil, fmt.Errorf("failed to insert friend request: %w", err)
	}
	return f, nil
}

// Respond accepts or rejects a pending request addressed to receiverID.
func (r *FriendRepository) Respond(ctx context.Context, id, receiverID string, accept bool) (*models.Friend, error) {
	status := models.FriendRejected
	if accept {
		status = models.FriendAccepted
	}

	result, err := r.db.ExecContext(ctx,
		"UPDATE friends SET status = ?, updated_at = ? WHERE id = ? AND receiver_id = ? AND status = ?",
		status, utcNow(), id, receiverID, models.FriendPending)
	if err != nil {
		return nil, fmt.Errorf("failed to update friend request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, fmt.Errorf("pending friend request %s: %w", id, shared.ErrNotFound)
	}

	return r.get(ctx, id)
}

// Cancel withdraws a pending request sent by requesterID.
func (r *FriendRepository) Cancel(ctx context.Context, id, requesterID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM friends WHERE id = ? AND requester_id = ? AND status = ?", id, requesterID, models.FriendPending)
	if err != nil {
		return fmt.Errorf("failed to delete friend request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("pending friend request %s: %w", id, shared.ErrNotFound)
	}
	return nil
}

// AreFriends reports whether an accepted edge joins a and b.
func (r *FriendRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	var ok bool
	query := `SELECT EXISTS(SELECT 1 FROM friends WHERE status = ?
		AND ((requester_id = ? AND receiver_id = ?) OR (requester_id = ? AND receiver_id = ?)))`
	if err := r.db.QueryRowContext(ctx, query, models.FriendAccepted, a, b, b, a).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return ok, nil
}

// ListFriends returns the users joined to userID by an accepted edge.
func (r *FriendRepository) ListFriends(ctx context.Context, userID string) ([]*models.User, error) {
	query := `
		SELECT u.id, u.username, u.display_name, u.is_admin, u.created_at, u.updated_at
		FROM friends f
		JOIN users u ON u.id = CASE WHEN f.requester_id = ? THEN f.receiver_id ELSE f.requester_id END
		WHERE f.status = ? AND (f.requester_id = ? OR f.receiver_id = ?)
		ORDER BY u.username ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID, models.FriendAccepted, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query friends: %w", err)
	}
	defer rows.Close()

	users := &UserRepository{}
	var friends []*models.User
	for rows.Next() {
		u, err := users.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend: %w", err)
		}
		friends = append(friends, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return friends, nil
}

// ListPending returns requests waiting on receiverID, newest first.
func (r *FriendRepository) ListPending(ctx context.Context, receiverID string) ([]*models.Friend, error) {
	return r.listPending(ctx, "receiver_id", receiverID)
}

// ListSent returns requests requesterID is still waiting on, newest first.
func (r *FriendRepository) ListSent(ctx context.Context, requesterID string) ([]*models.Friend, error) {
	return r.listPending(ctx, "requester_id", requesterID)
}

// Relationship describes how otherID stands towards viewerID. Rejected edges count as none.
func (r *FriendRepository) Relationship(ctx context.Context, viewerID, otherID string) (models.Relationship, error) {
	var rel models.Relationship
	f, err := r.Between(ctx, viewerID, otherID)
	if errors.Is(err, shared.ErrNotFound) {
		return rel, nil
	}
	if err != nil {
		return rel, err
	}

	switch f.Status {
	case models.FriendAccepted:
		rel.IsFriend = true
	case models.FriendPending:
		rel.PendingRequestID = f.ID
		rel.PendingTo = f.RequesterID == viewerID
		rel.PendingFrom = !rel.PendingTo
	}
	return rel, nil
}

func (r *FriendRepository) listPending(ctx context.Context, column, userID string) ([]*models.Friend, error) {
	query := "SELECT " + friendColumns + " FROM friends WHERE " + column + " = ? AND status = ? ORDER BY created_at DESC"
	rows, err := r.db.QueryContext(ctx, query, userID, models.FriendPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query friend requests: %w", err)
	}
	defer rows.Close()

	var pending []*models.Friend
	for rows.Next() {
		f, err := r.scanOne(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan friend request: %w", err)
		}
		pending = append(pending, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return pending, nil
}

func (r *FriendRepository) get(ctx context.Context, id string) (*models.Friend, error) {
	f, err := r.scanOne(r.db.QueryRowContext(ctx, "SELECT "+friendColumns+" FROM friends WHERE id = ?", id))
	if err != nil {
		return nil, notFound(err, "friend", id)
	}
	return f, nil
}

func (r *FriendRepository) scanOne(row scanner) (*models.Friend, error) {
	var f models.Friend
	if err := row.Scan(&f.ID, &f.RequesterID, &f.ReceiverID, &f.Status, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, err
	}
	return &f, nil
}
