package services

import (
	"errors"
	"strings"
	"testing"

	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

func validPlatforms() map[string]shared.PlatformConfig {
	return map[string]shared.PlatformConfig{
		"spotify": {
			ClientID:     "sp-id",
			ClientSecret: "sp-secret",
			RedirectURI:  "http://127.0.0.1:3000/callback/spotify",
			Params:       map[string]string{"show_dialog": "true"},
		},
		"YouTube": {
			ClientID:     "yt-id",
			ClientSecret: "yt-secret",
			RedirectURI:  "http://127.0.0.1:3000/callback/youtube",
			Params:       map[string]string{"access_type": "offline", "prompt": "consent"},
		},
	}
}

func TestRegistry(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		reg, err := NewRegistry(validPlatforms())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		e, err := reg.Lookup("SPOTIFY")
		if err != nil {
			t.Fatalf("expected case-insensitive lookup, got %v", err)
		}
		if e.AuthURL != spotifyauth.AuthURL || e.TokenURL != spotifyauth.TokenURL {
			t.Errorf("expected spotify defaults, got %s %s", e.AuthURL, e.TokenURL)
		}
		if e.APIURL != spotifyAPIURL || len(e.Scopes) == 0 {
			t.Errorf("expected api url and scopes, got %+v", e)
		}

		yt, err := reg.Lookup("youtube")
		if err != nil {
			t.Fatalf("expected youtube entry, got %v", err)
		}
		if yt.TokenURL != googleTokenURL || yt.UserInfoURL != youtubeIdentity {
			t.Errorf("unexpected youtube entry: %+v", yt)
		}

		got := reg.Platforms()
		if len(got) != 2 || got[0] != models.Spotify || got[1] != models.YouTube {
			t.Errorf("unexpected platforms: %v", got)
		}
	})

	t.Run("AuthCodeURL", func(t *testing.T) {
		reg, _ := NewRegistry(validPlatforms())
		u, err := reg.AuthCodeURL("youtube", "xyz")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		for _, want := range []string{googleAuthURL, "client_id=yt-id", "state=xyz", "access_type=offline", "prompt=consent"} {
			if !strings.Contains(u, want) {
				t.Errorf("expected %q in %s", want, u)
			}
		}
	})

	t.Run("Unknown Platform", func(t *testing.T) {
		platforms := validPlatforms()
		platforms["tidal"] = shared.PlatformConfig{ClientID: "a", ClientSecret: "b", RedirectURI: "http://x/cb"}

		_, err := NewRegistry(platforms)
		var upe *shared.UnsupportedPlatformError
		if !errors.As(err, &upe) || upe.Platform != "tidal" {
			t.Fatalf("expected UnsupportedPlatformError, got %v", err)
		}
	})

	t.Run("Missing Credentials", func(t *testing.T) {
		_, err := NewRegistry(map[string]shared.PlatformConfig{
			"spotify": {ClientID: "id", RedirectURI: "http://x/cb"},
		})
		if !errors.Is(err, shared.ErrMissingCredentials) {
			t.Errorf("expected ErrMissingCredentials, got %v", err)
		}
	})

	t.Run("Missing Redirect", func(t *testing.T) {
		_, err := NewRegistry(map[string]shared.PlatformConfig{
			"spotify": {ClientID: "id", ClientSecret: "secret"},
		})
		if !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})

	t.Run("Lookup Unconfigured", func(t *testing.T) {
		reg, _ := NewRegistry(map[string]shared.PlatformConfig{})
		if _, err := reg.Lookup("spotify"); !errors.Is(err, shared.ErrUnsupportedPlatform) {
			t.Errorf("expected ErrUnsupportedPlatform, got %v", err)
		}
	})
}

func TestFactory(t *testing.T) {
	reg, err := NewRegistry(validPlatforms())
	if err != nil {
		t.Fatalf("failed to build registry: %v", err)
	}
	f := NewFactory(reg, Options{})

	t.Run("ResolveAuth", func(t *testing.T) {
		svc, err := f.ResolveAuth("Spotify")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := svc.(*SpotifyService); !ok {
			t.Errorf("expected *SpotifyService, got %T", svc)
		}

		again, _ := f.ResolveAuth("spotify")
		if again != svc {
			t.Error("expected the same service instance")
		}
	})

	t.Run("ResolveSync", func(t *testing.T) {
		svc, err := f.ResolveSync(&models.Connection{Platform: models.YouTube})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if svc.Platform() != models.YouTube {
			t.Errorf("expected youtube, got %s", svc.Platform())
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		svc, err := f.ResolveAuth("tidal")
		var upe *shared.UnsupportedPlatformError
		if !errors.As(err, &upe) {
			t.Fatalf("expected UnsupportedPlatformError, got %v", err)
		}
		if svc != nil {
			t.Error("expected no service")
		}

		if _, err := f.ResolveSync(nil); !errors.Is(err, shared.ErrUnsupportedPlatform) {
			t.Errorf("expected ErrUnsupportedPlatform for nil connection, got %v", err)
		}
	})

	t.Run("OptionsFromConfig", func(t *testing.T) {
		opts := OptionsFromConfig(shared.SyncConfig{RequestsPerSecond: 2, Burst: 3}, nil, nil)
		l := opts.limiter()
		if l.Burst() != 3 || float64(l.Limit()) != 2 {
			t.Errorf("unexpected limiter: %v/%d", l.Limit(), l.Burst())
		}
		if opts.RetryAfter.Seconds() != 5 {
			t.Errorf("expected default retry-after, got %v", opts.RetryAfter)
		}
	})
}
