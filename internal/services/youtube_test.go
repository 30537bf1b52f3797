package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/tunelink/internal/models"
)

func youtubeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/channels":
			if q.Get("mine") != "true" {
				t.Errorf("expected mine=true, got %s", r.URL.RawQuery)
			}
			writeJSON(t, w, `{"items":[{"id":"UC123","snippet":{"title":"My Channel"}}]}`)
		case "/playlists":
			if q.Get("pageToken") == "" {
				writeJSON(t, w, `{
					"items":[{"id":"PL1","etag":"e1","snippet":{"title":"Mix","channelId":"UC123"},"status":{"privacyStatus":"public"},"contentDetails":{"itemCount":3}}],
					"nextPageToken":"page2"
				}`)
				return
			}
			writeJSON(t, w, `{
				"items":[{"id":"PL2","etag":"e2","snippet":{"title":"Hidden","channelId":"UC123"},"status":{"privacyStatus":"private"},"contentDetails":{"itemCount":0}}]
			}`)
		case "/playlistItems":
			if q.Get("playlistId") != "PL1" {
				t.Errorf("unexpected playlist id %s", q.Get("playlistId"))
			}
			writeJSON(t, w, `{"items":[
				{"snippet":{"title":"Song","publishedAt":"2024-05-01T00:00:00Z","videoOwnerChannelTitle":"Band - Topic",
					"thumbnails":{"default":{"url":"d","width":120,"height":90},"high":{"url":"h","width":480,"height":360}}},
				 "contentDetails":{"videoId":"v1"}},
				{"snippet":{"title":"Deleted video"},"contentDetails":{"videoId":"gone"}},
				{"snippet":{"title":"Other","videoOwnerChannelTitle":"Someone","resourceId":{"videoId":"v2"}},"contentDetails":{}}
			]}`)
		case "/videos":
			if q.Get("id") != "v1,v2" {
				t.Errorf("expected ids v1,v2, got %s", q.Get("id"))
			}
			writeJSON(t, w, `{"items":[
				{"id":"v1","contentDetails":{"duration":"PT3M5S"}},
				{"id":"v2","contentDetails":{"duration":"PT1H"}}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestYouTubeService(t *testing.T) {
	srv := youtubeServer(t)
	e := testEndpoint(models.YouTube, srv.URL)
	e.UserInfoURL = srv.URL + "/channels?part=snippet&mine=true"
	svc := NewYouTubeService(e, testOptions(srv))

	t.Run("Identity", func(t *testing.T) {
		id, err := svc.Identity(context.Background(), "tok")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id.ID != "UC123" || id.DisplayName != "My Channel" {
			t.Errorf("unexpected identity: %+v", id)
		}
	})

	t.Run("Identity Without Channel", func(t *testing.T) {
		id, err := parseYouTubeChannel([]byte(`{"items":[]}`))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if id.ID != "" {
			t.Errorf("expected empty identity, got %+v", id)
		}
	})

	t.Run("FetchPlaylists", func(t *testing.T) {
		playlists, err := svc.FetchPlaylists(context.Background(), "tok")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(playlists) != 2 {
			t.Fatalf("expected 2 playlists across pages, got %d", len(playlists))
		}
		if playlists[0].ExternalID != "PL1" || playlists[0].SnapshotID != "e1" || !playlists[0].Public() {
			t.Errorf("unexpected first playlist: %+v", playlists[0])
		}
		if playlists[1].Public() {
			t.Error("expected private playlist")
		}
	})

	t.Run("FetchTracks", func(t *testing.T) {
		tracks, err := svc.FetchTracks(context.Background(), "tok", "PL1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(tracks) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(tracks))
		}

		song := tracks[0]
		if song.PlatformTrackID != "v1" || song.DurationMS != 185000 {
			t.Errorf("unexpected first track: %+v", song)
		}
		if len(song.Artists) != 1 || song.Artists[0] != "Band" {
			t.Errorf("expected topic suffix trimmed, got %v", song.Artists)
		}
		if song.ImageURL != "h" {
			t.Errorf("expected largest thumbnail, got %s", song.ImageURL)
		}
		if !strings.HasSuffix(song.ExternalURL, "v=v1") {
			t.Errorf("unexpected external url %s", song.ExternalURL)
		}

		if tracks[1].PlatformTrackID != "" {
			t.Error("expected deleted video to have no track id")
		}
		if tracks[2].PlatformTrackID != "v2" || tracks[2].DurationMS != 3600000 {
			t.Errorf("expected resourceId fallback, got %+v", tracks[2])
		}
	})
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"PT3M5S", 185000},
		{"PT45S", 45000},
		{"PT1H2M", 3720000},
		{"P1DT1S", 86401000},
		{"P0D", 0},
		{"", 0},
		{"3:05", 0},
	}
	for _, tt := range tests {
		if got := parseISODuration(tt.in); got != tt.want {
			t.Errorf("parseISODuration(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
