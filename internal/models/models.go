package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tunelink/internal/shared"
)

// Platform is a supported music platform.
type Platform string

const (
	Spotify Platform = "spotify"
	YouTube Platform = "youtube"
)

// Platforms lists every known platform variant.
func Platforms() []Platform {
	return []Platform{Spotify, YouTube}
}

// ParsePlatform matches a platform name case-insensitively.
func ParsePlatform(s string) (Platform, bool) {
	for _, p := range Platforms() {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, true
		}
	}
	return "", false
}

func (p Platform) String() string { return string(p) }

// Title is the human-readable platform name.
func (p Platform) Title() string {
	switch p {
	case Spotify:
		return "Spotify"
	case YouTube:
		return "YouTube"
	default:
		return string(p)
	}
}

// User is a local account. Username is empty until the user picks a public handle.
type User struct {
	ID          string
	Username    string
	DisplayName string
	IsAdmin     bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasUsername reports whether the handle-assignment step is complete.
func (u *User) HasUsername() bool { return u.Username != "" }

// Token holds OAuth credentials for one platform link.
//
// A nil ExpiresAt means the expiry is unknown and the token must be refreshed before use.
type Token struct {
	ID           string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
	Extra        map[string]any
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Fresh reports whether the access token can be used at now without a refresh.
func (t *Token) Fresh(now time.Time) bool {
	return t.ExpiresAt != nil && t.ExpiresAt.After(now)
}

// Connection links a user to one platform account. (Platform, PlatformUserID) is unique.
type Connection struct {
	ID                string
	UserID            string
	Platform          Platform
	PlatformUserID    string
	TokenID           string
	PlaylistsSyncedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Playlist is a mirrored remote playlist. (Platform, PlatformUserID, ExternalID) is unique.
type Playlist struct {
	ID             string
	ExternalID     string
	Name           string
	SnapshotID     string
	IsPublic       bool
	Platform       Platform
	PlatformUserID string
	ConnectionID   string
	TracksSyncedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Track is deduplicated globally by (Platform, PlatformTrackID).
type Track struct {
	ID              string
	Platform        Platform
	PlatformTrackID string
	Title           string
	Artist          string
	Album           string
	DurationMS      int
	DurationDisplay string
	PreviewURL      string
	ExternalURL     string
	ImageURL        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PlaylistItem places a track at a zero-based position in a playlist.
type PlaylistItem struct {
	ID         string
	PlaylistID string
	TrackID    string
	Position   int
	AddedAt    *time.Time
	Track      *Track
}

// FriendStatus is the state of a friend request.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
	FriendRejected FriendStatus = "rejected"
)

// Friend is a directed request edge from RequesterID to ReceiverID.
type Friend struct {
	ID          string
	RequesterID string
	ReceiverID  string
	Status      FriendStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Other returns the id on the opposite end of the edge from userID.
func (f *Friend) Other(userID string) string {
	if f.RequesterID == userID {
		return f.ReceiverID
	}
	return f.RequesterID
}

// Relationship is how another user stands towards the viewer.
type Relationship struct {
	IsFriend bool
	// PendingFrom is set when the other user is waiting on the viewer's answer.
	PendingFrom bool
	// PendingTo is set when the viewer is waiting on the other user's answer.
	PendingTo        bool
	PendingRequestID string
}

// RemoteIdentity is the platform account returned by a user-info endpoint.
type RemoteIdentity struct {
	ID          string
	DisplayName string
	Email       string
}

// RemotePlaylist is one record of a platform's playlist listing.
type RemotePlaylist struct {
	ExternalID string
	Name       string
	SnapshotID string
	IsPublic   *bool
	OwnerID    string
	TrackCount int
}

// Public resolves the visibility flag. Only an explicit true is public; a null or missing
// flag counts as private.
func (p RemotePlaylist) Public() bool {
	return p.IsPublic != nil && *p.IsPublic
}

// RemoteTrack is one entry of a playlist's track listing. An empty PlatformTrackID marks
// a local file or removed video that cannot be mirrored.
type RemoteTrack struct {
	PlatformTrackID string
	Title           string
	Artists         []string
	Album           string
	DurationMS      int
	PreviewURL      string
	ExternalURL     string
	ImageURL        string
	AddedAt         *time.Time
}

// SessionPlatform is the per-platform entry of a [Session].
type SessionPlatform struct {
	PlatformUserID string `json:"platform_user_id"`
	ConnectionID   string `json:"connection_id"`
}

// Session is the login state carried between requests.
type Session struct {
	UserID         string                       `json:"id"`
	Platforms      map[Platform]SessionPlatform `json:"platforms"`
	ActivePlatform Platform                     `json:"active_platform"`
	NeedsHandle    bool                         `json:"needs_handle"`
}

// Clone returns a deep copy so callers can update a session without aliasing the original.
func (s *Session) Clone() *Session {
	if s == nil {
		return &Session{Platforms: map[Platform]SessionPlatform{}}
	}
	c := *s
	c.Platforms = make(map[Platform]SessionPlatform, len(s.Platforms))
	for k, v := range s.Platforms {
		c.Platforms[k] = v
	}
	return &c
}

// Active returns the entry for the active platform.
func (s *Session) Active() (SessionPlatform, error) {
	if s == nil || s.UserID == "" {
		return SessionPlatform{}, shared.ErrNotAuthenticated
	}
	sp, ok := s.Platforms[s.ActivePlatform]
	if !ok {
		return SessionPlatform{}, fmt.Errorf("%w: no connection for active platform %q", shared.ErrNotAuthenticated, s.ActivePlatform)
	}
	return sp, nil
}
