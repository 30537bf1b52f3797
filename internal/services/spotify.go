// Spotify Web API implementation of [AuthService] and [PlaylistSyncService]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/desertthunder/tunelink/internal/formatter"
	"github.com/desertthunder/tunelink/internal/models"
)

const (
	spotifyPlaylistPageSize = 50
	spotifyTrackPageSize    = 100
)

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a simplified Spotify artist.
type SpotifyArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SpotifyAlbum represents a simplified Spotify album.
type SpotifyAlbum struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Images []SpotifyImage `json:"images"`
}

// SpotifyTrack represents a Spotify track. ID is null for local files.
type SpotifyTrack struct {
	ID           *string           `json:"id"`
	Name         string            `json:"name"`
	Artists      []SpotifyArtist   `json:"artists"`
	Album        SpotifyAlbum      `json:"album"`
	DurationMS   int               `json:"duration_ms"`
	PreviewURL   *string           `json:"preview_url"`
	ExternalURLs map[string]string `json:"external_urls"`
	IsLocal      bool              `json:"is_local"`
}

// SpotifyPlaylistTrack represents a track within a playlist context. Track is null for
// episodes and removed items.
type SpotifyPlaylistTrack struct {
	AddedAt string        `json:"added_at"`
	Track   *SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a page of playlist tracks.
type SpotifyPaginatedTracks struct {
	Items  []SpotifyPlaylistTrack `json:"items"`
	Total  int                    `json:"total"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
	Next   *string                `json:"next"`
}

// Owner is the account that owns a playlist.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTracks struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
//
// Public is null for playlists whose visibility Spotify does not report.
type SpotifySimplePlaylist struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	SnapshotID string               `json:"snapshot_id"`
	Owner      Owner                `json:"owner"`
	Public     *bool                `json:"public"`
	Tracks     simplePlaylistTracks `json:"tracks"`
}

// SpotifyPaginatedPlaylists represents a paginated response of playlists.
type SpotifyPaginatedPlaylists struct {
	Items  []SpotifySimplePlaylist `json:"items"`
	Total  int                     `json:"total"`
	Limit  int                     `json:"limit"`
	Offset int                     `json:"offset"`
	Next   *string                 `json:"next"`
}

// SpotifyService talks to the Spotify accounts service and Web API.
type SpotifyService struct {
	*oauthService
	fetch  *fetcher
	apiURL string
}

// NewSpotifyService creates a Spotify service for a resolved registry entry.
func NewSpotifyService(e Endpoint, opts Options) *SpotifyService {
	s := &SpotifyService{
		oauthService: newOAuthService(e, opts, parseSpotifyUser),
		apiURL:       e.APIURL,
	}
	s.fetch = newFetcher(s.client, opts.limiter(), opts.RetryAfter, opts.Sleep, s.logger)
	return s
}

func parseSpotifyUser(body []byte) (*models.RemoteIdentity, error) {
	var u SpotifyUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, err
	}
	return &models.RemoteIdentity{ID: u.ID, DisplayName: u.DisplayName, Email: u.Email}, nil
}

// FetchPlaylists pages through /me/playlists with offset/limit until next is null.
func (s *SpotifyService) FetchPlaylists(ctx context.Context, accessToken string) ([]models.RemotePlaylist, error) {
	var playlists []models.RemotePlaylist

	for offset := 0; ; offset += spotifyPlaylistPageSize {
		endpoint := fmt.Sprintf("%s/me/playlists?limit=%d&offset=%d", s.apiURL, spotifyPlaylistPageSize, offset)

		var page SpotifyPaginatedPlaylists
		if err := s.fetch.getJSON(ctx, accessToken, endpoint, &page); err != nil {
			return nil, err
		}

		for _, sp := range page.Items {
			playlists = append(playlists, models.RemotePlaylist{
				ExternalID: sp.ID,
				Name:       sp.Name,
				SnapshotID: sp.SnapshotID,
				IsPublic:   sp.Public,
				OwnerID:    sp.Owner.ID,
				TrackCount: sp.Tracks.Total,
			})
		}

		if page.Next == nil || *page.Next == "" {
			break
		}
	}

	s.logger.Debug("fetched playlists", "count", len(playlists))
	return playlists, nil
}

// FetchTracks pages through /playlists/{id}/tracks. Local files and removed items come back with
// an empty track id.
func (s *SpotifyService) FetchTracks(ctx context.Context, accessToken, playlistID string) ([]models.RemoteTrack, error) {
	var tracks []models.RemoteTrack

	for offset := 0; ; offset += spotifyTrackPageSize {
		endpoint := fmt.Sprintf("%s/playlists/%s/tracks?limit=%d&offset=%d",
			s.apiURL, url.PathEscape(playlistID), spotifyTrackPageSize, offset)

		var page SpotifyPaginatedTracks
		if err := s.fetch.getJSON(ctx, accessToken, endpoint, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Items {
			tracks = append(tracks, spotifyRemoteTrack(item))
		}

		if page.Next == nil || *page.Next == "" {
			break
		}
	}

	return tracks, nil
}

func spotifyRemoteTrack(item SpotifyPlaylistTrack) models.RemoteTrack {
	var rt models.RemoteTrack
	if added, err := time.Parse(time.RFC3339, item.AddedAt); err == nil {
		added = added.UTC()
		rt.AddedAt = &added
	}

	t := item.Track
	if t == nil {
		return rt
	}

	if t.ID != nil && !t.IsLocal {
		rt.PlatformTrackID = *t.ID
	}
	rt.Title = t.Name
	rt.Album = t.Album.Name
	rt.DurationMS = t.DurationMS
	rt.ExternalURL = t.ExternalURLs["spotify"]
	if t.PreviewURL != nil {
		rt.PreviewURL = *t.PreviewURL
	}
	if len(t.Album.Images) > 0 {
		rt.ImageURL = formatter.LargestImage(spotifyImageSizes(t.Album.Images))
	}
	for _, a := range t.Artists {
		rt.Artists = append(rt.Artists, a.Name)
	}
	return rt
}

func spotifyImageSizes(images []SpotifyImage) []formatter.Image {
	out := make([]formatter.Image, len(images))
	for i, img := range images {
		out[i] = formatter.Image{URL: img.URL, Width: img.Width, Height: img.Height}
	}
	return out
}
