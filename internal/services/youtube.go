// YouTube Data API v3 implementation of [AuthService] and [PlaylistSyncService]
//
// Response types based on https://developers.google.com/youtube/v3/docs
package services

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/desertthunder/tunelink/internal/formatter"
	"github.com/desertthunder/tunelink/internal/models"
)

const youtubePageSize = 50

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// YouTubeImage represents a thumbnail rendition.
type YouTubeImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type youtubeChannelSnippet struct {
	Title string `json:"title"`
}

// YouTubeChannel is the channel behind the authorized account.
type YouTubeChannel struct {
	ID      string                `json:"id"`
	Snippet youtubeChannelSnippet `json:"snippet"`
}

type youtubeChannelList struct {
	Items []YouTubeChannel `json:"items"`
}

type youtubePlaylistSnippet struct {
	Title        string                  `json:"title"`
	ChannelID    string                  `json:"channelId"`
	ChannelTitle string                  `json:"channelTitle"`
	Thumbnails   map[string]YouTubeImage `json:"thumbnails"`
}

type youtubeStatus struct {
	PrivacyStatus string `json:"privacyStatus"`
}

type youtubePlaylistDetails struct {
	ItemCount int `json:"itemCount"`
}

// YouTubePlaylist represents a playlist resource.
type YouTubePlaylist struct {
	ID             string                 `json:"id"`
	ETag           string                 `json:"etag"`
	Snippet        youtubePlaylistSnippet `json:"snippet"`
	Status         youtubeStatus          `json:"status"`
	ContentDetails youtubePlaylistDetails `json:"contentDetails"`
}

// YouTubePlaylistPage is one page of a playlists.list response.
type YouTubePlaylistPage struct {
	Items         []YouTubePlaylist `json:"items"`
	NextPageToken string            `json:"nextPageToken"`
}

type youtubeResourceID struct {
	VideoID string `json:"videoId"`
}

type youtubeItemSnippet struct {
	Title                  string                  `json:"title"`
	PublishedAt            string                  `json:"publishedAt"`
	VideoOwnerChannelTitle string                  `json:"videoOwnerChannelTitle"`
	ResourceID             youtubeResourceID       `json:"resourceId"`
	Thumbnails             map[string]YouTubeImage `json:"thumbnails"`
}

type youtubeItemDetails struct {
	VideoID string `json:"videoId"`
}

// YouTubePlaylistItem is one entry of a playlistItems.list response.
type YouTubePlaylistItem struct {
	ID             string             `json:"id"`
	Snippet        youtubeItemSnippet `json:"snippet"`
	ContentDetails youtubeItemDetails `json:"contentDetails"`
}

// YouTubePlaylistItemPage is one page of a playlistItems.list response.
type YouTubePlaylistItemPage struct {
	Items         []YouTubePlaylistItem `json:"items"`
	NextPageToken string                `json:"nextPageToken"`
}

type youtubeVideoDetails struct {
	Duration string `json:"duration"`
}

type youtubeVideo struct {
	ID             string              `json:"id"`
	ContentDetails youtubeVideoDetails `json:"contentDetails"`
}

type youtubeVideoList struct {
	Items []youtubeVideo `json:"items"`
}

// YouTubeService talks to Google OAuth and the YouTube Data API.
type YouTubeService struct {
	*oauthService
	fetch  *fetcher
	apiURL string
}

// NewYouTubeService creates a YouTube service for a resolved registry entry.
func NewYouTubeService(e Endpoint, opts Options) *YouTubeService {
	s := &YouTubeService{
		oauthService: newOAuthService(e, opts, parseYouTubeChannel),
		apiURL:       e.APIURL,
	}
	s.fetch = newFetcher(s.client, opts.limiter(), opts.RetryAfter, opts.Sleep, s.logger)
	return s
}

// parseYouTubeChannel reads a channels.list?mine=true response. The channel id is the account id.
func parseYouTubeChannel(body []byte) (*models.RemoteIdentity, error) {
	var list youtubeChannelList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, err
	}
	if len(list.Items) == 0 {
		return &models.RemoteIdentity{}, nil
	}
	ch := list.Items[0]
	return &models.RemoteIdentity{ID: ch.ID, DisplayName: ch.Snippet.Title}, nil
}

// FetchPlaylists pages through playlists.list?mine=true following nextPageToken.
func (s *YouTubeService) FetchPlaylists(ctx context.Context, accessToken string) ([]models.RemotePlaylist, error) {
	var playlists []models.RemotePlaylist

	pageToken := ""
	for {
		q := url.Values{}
		q.Set("part", "snippet,status,contentDetails")
		q.Set("mine", "true")
		q.Set("maxResults", strconv.Itoa(youtubePageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page YouTubePlaylistPage
		if err := s.fetch.getJSON(ctx, accessToken, s.apiURL+"/playlists?"+q.Encode(), &page); err != nil {
			return nil, err
		}

		for _, yp := range page.Items {
			public := yp.Status.PrivacyStatus == "" || yp.Status.PrivacyStatus == "public"
			playlists = append(playlists, models.RemotePlaylist{
				ExternalID: yp.ID,
				Name:       yp.Snippet.Title,
				SnapshotID: yp.ETag,
				IsPublic:   &public,
				OwnerID:    yp.Snippet.ChannelID,
				TrackCount: yp.ContentDetails.ItemCount,
			})
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	s.logger.Debug("fetched playlists", "count", len(playlists))
	return playlists, nil
}

// FetchTracks pages through playlistItems.list and fills durations from videos.list. Deleted and
// private videos come back with an empty track id.
func (s *YouTubeService) FetchTracks(ctx context.Context, accessToken, playlistID string) ([]models.RemoteTrack, error) {
	var tracks []models.RemoteTrack

	pageToken := ""
	for {
		q := url.Values{}
		q.Set("part", "snippet,contentDetails")
		q.Set("playlistId", playlistID)
		q.Set("maxResults", strconv.Itoa(youtubePageSize))
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		var page YouTubePlaylistItemPage
		if err := s.fetch.getJSON(ctx, accessToken, s.apiURL+"/playlistItems?"+q.Encode(), &page); err != nil {
			return nil, err
		}

		batch := make([]models.RemoteTrack, 0, len(page.Items))
		for _, item := range page.Items {
			batch = append(batch, youtubeRemoteTrack(item))
		}
		if err := s.fillDurations(ctx, accessToken, batch); err != nil {
			return nil, err
		}
		tracks = append(tracks, batch...)

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	return tracks, nil
}

func (s *YouTubeService) fillDurations(ctx context.Context, accessToken string, batch []models.RemoteTrack) error {
	var ids []string
	for _, t := range batch {
		if t.PlatformTrackID != "" {
			ids = append(ids, t.PlatformTrackID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	q := url.Values{}
	q.Set("part", "contentDetails")
	q.Set("id", strings.Join(ids, ","))
	q.Set("maxResults", strconv.Itoa(youtubePageSize))

	var videos youtubeVideoList
	if err := s.fetch.getJSON(ctx, accessToken, s.apiURL+"/videos?"+q.Encode(), &videos); err != nil {
		return err
	}

	durations := make(map[string]int, len(videos.Items))
	for _, v := range videos.Items {
		durations[v.ID] = parseISODuration(v.ContentDetails.Duration)
	}
	for i := range batch {
		batch[i].DurationMS = durations[batch[i].PlatformTrackID]
	}
	return nil
}

func youtubeRemoteTrack(item YouTubePlaylistItem) models.RemoteTrack {
	videoID := item.ContentDetails.VideoID
	if videoID == "" {
		videoID = item.Snippet.ResourceID.VideoID
	}
	// Deleted and private videos keep their slot but lose their owner.
	switch item.Snippet.Title {
	case "Deleted video", "Private video":
		videoID = ""
	}

	rt := models.RemoteTrack{
		PlatformTrackID: videoID,
		Title:           item.Snippet.Title,
		ImageURL:        formatter.LargestImage(youtubeImageSizes(item.Snippet.Thumbnails)),
	}
	if owner := strings.TrimSuffix(item.Snippet.VideoOwnerChannelTitle, " - Topic"); owner != "" {
		rt.Artists = []string{owner}
	}
	if videoID != "" {
		rt.ExternalURL = "https://music.youtube.com/watch?v=" + url.QueryEscape(videoID)
	}
	if added, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt); err == nil {
		added = added.UTC()
		rt.AddedAt = &added
	}
	return rt
}

func youtubeImageSizes(thumbs map[string]YouTubeImage) []formatter.Image {
	out := make([]formatter.Image, 0, len(thumbs))
	for _, img := range thumbs {
		out = append(out, formatter.Image{URL: img.URL, Width: img.Width, Height: img.Height})
	}
	return out
}

// parseISODuration converts an ISO 8601 duration such as PT3M05S to milliseconds.
func parseISODuration(s string) int {
	m := isoDuration.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var total time.Duration
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return 0
		}
		total += time.Duration(n) * unit
	}
	return int(total / time.Millisecond)
}
