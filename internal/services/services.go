package services

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/desertthunder/tunelink/internal/models"
)

// AuthService drives the OAuth lifecycle for one platform.
type AuthService interface {
	// Platform names the platform this service talks to.
	Platform() models.Platform

	// AuthCodeURL builds the authorize URL the user is redirected to.
	AuthCodeURL(state string) string

	// Exchange trades an authorization code for tokens.
	// Failures are reported as [shared.TokenRefreshError].
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)

	// Identity fetches the platform account behind accessToken.
	Identity(ctx context.Context, accessToken string) (*models.RemoteIdentity, error)

	// Refresh returns a usable access token, refreshing and persisting token when it has expired.
	// The refreshed values are written back into token.
	Refresh(ctx context.Context, token *models.Token) (string, error)
}

// PlaylistSyncService lists remote playlists and tracks for one platform.
type PlaylistSyncService interface {
	Platform() models.Platform

	// FetchPlaylists returns every playlist of the account behind accessToken.
	FetchPlaylists(ctx context.Context, accessToken string) ([]models.RemotePlaylist, error)

	// FetchTracks returns the full track listing of a remote playlist in platform order.
	FetchTracks(ctx context.Context, accessToken, playlistID string) ([]models.RemoteTrack, error)
}

// TokenStore loads and saves tokens for refresh.
//
// The token repository implements it.
type TokenStore interface {
	Get(ctx context.Context, id string) (*models.Token, error)
	Update(ctx context.Context, token *models.Token) error
}
