package services

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

const (
	spotifyAPIURL      = "https://api.spotify.com/v1"
	spotifyUserInfoURL = spotifyAPIURL + "/me"

	googleAuthURL   = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL  = "https://oauth2.googleapis.com/token"
	youtubeAPIURL   = "https://www.googleapis.com/youtube/v3"
	youtubeScope    = "https://www.googleapis.com/auth/youtube.readonly"
	youtubeIdentity = youtubeAPIURL + "/channels?part=snippet&mine=true"
)

// Endpoint is the resolved registry entry for one platform.
type Endpoint struct {
	Platform     models.Platform
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	APIURL       string
	Scopes       []string
	Params       map[string]string
}

// OAuth2Config builds the [oauth2.Config] for the entry. Client credentials go in the request
// body of token calls.
func (e Endpoint) OAuth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     e.ClientID,
		ClientSecret: e.ClientSecret,
		RedirectURL:  e.RedirectURI,
		Scopes:       e.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   e.AuthURL,
			TokenURL:  e.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// AuthCodeOptions turns the configured extra authorize parameters into [oauth2.AuthCodeOption]s,
// sorted by key so the generated URL is stable.
func (e Endpoint) AuthCodeOptions() []oauth2.AuthCodeOption {
	keys := make([]string, 0, len(e.Params))
	for k := range e.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	opts := make([]oauth2.AuthCodeOption, 0, len(keys))
	for _, k := range keys {
		opts = append(opts, oauth2.SetAuthURLParam(k, e.Params[k]))
	}
	return opts
}

// Registry maps each configured platform to its [Endpoint].
type Registry struct {
	entries map[models.Platform]Endpoint
}

// NewRegistry resolves the [platforms.*] config tables. Unknown platform names and entries without
// client credentials or a redirect URI are rejected.
func NewRegistry(platforms map[string]shared.PlatformConfig) (*Registry, error) {
	r := &Registry{entries: make(map[models.Platform]Endpoint, len(platforms))}

	for name, pc := range platforms {
		p, ok := models.ParsePlatform(name)
		if !ok {
			return nil, &shared.UnsupportedPlatformError{Platform: name}
		}

		e := withDefaults(p, pc)
		if e.ClientID == "" || e.ClientSecret == "" {
			return nil, fmt.Errorf("%w: %s client_id and client_secret are required", shared.ErrMissingCredentials, p)
		}
		if e.RedirectURI == "" {
			return nil, fmt.Errorf("%w: %s redirect_uri is required", shared.ErrInvalidConfig, p)
		}
		for _, raw := range []string{e.AuthURL, e.TokenURL, e.UserInfoURL, e.APIURL, e.RedirectURI} {
			if _, err := url.ParseRequestURI(raw); err != nil {
				return nil, fmt.Errorf("%w: %s endpoint %q: %v", shared.ErrInvalidConfig, p, raw, err)
			}
		}

		r.entries[p] = e
	}

	return r, nil
}

// Lookup finds the entry for a platform name, case-insensitively.
func (r *Registry) Lookup(name string) (Endpoint, error) {
	p, ok := models.ParsePlatform(name)
	if !ok {
		return Endpoint{}, &shared.UnsupportedPlatformError{Platform: name}
	}
	e, ok := r.entries[p]
	if !ok {
		return Endpoint{}, &shared.UnsupportedPlatformError{Platform: name}
	}
	return e, nil
}

// Platforms lists the configured platforms in a stable order.
func (r *Registry) Platforms() []models.Platform {
	var out []models.Platform
	for _, p := range models.Platforms() {
		if _, ok := r.entries[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// AuthCodeURL builds the authorize URL for a platform: AUTH_URL with the configured params plus
// client_id, redirect_uri and state.
func (r *Registry) AuthCodeURL(name, state string) (string, error) {
	e, err := r.Lookup(name)
	if err != nil {
		return "", err
	}
	return e.OAuth2Config().AuthCodeURL(state, e.AuthCodeOptions()...), nil
}

func withDefaults(p models.Platform, pc shared.PlatformConfig) Endpoint {
	e := Endpoint{
		Platform:     p,
		ClientID:     strings.TrimSpace(pc.ClientID),
		ClientSecret: strings.TrimSpace(pc.ClientSecret),
		RedirectURI:  strings.TrimSpace(pc.RedirectURI),
		AuthURL:      pc.AuthURL,
		TokenURL:     pc.TokenURL,
		UserInfoURL:  pc.UserInfoURL,
		APIURL:       strings.TrimSuffix(pc.APIURL, "/"),
		Scopes:       pc.Scopes,
		Params:       pc.Params,
	}

	var auth, token, info, api string
	var scopes []string
	switch p {
	case models.Spotify:
		auth, token, info, api = spotifyauth.AuthURL, spotifyauth.TokenURL, spotifyUserInfoURL, spotifyAPIURL
		scopes = []string{
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopeUserReadEmail,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistReadCollaborative,
		}
	case models.YouTube:
		auth, token, info, api = googleAuthURL, googleTokenURL, youtubeIdentity, youtubeAPIURL
		scopes = []string{youtubeScope}
	}

	if e.AuthURL == "" {
		e.AuthURL = auth
	}
	if e.TokenURL == "" {
		e.TokenURL = token
	}
	if e.UserInfoURL == "" {
		e.UserInfoURL = info
	}
	if e.APIURL == "" {
		e.APIURL = api
	}
	if len(e.Scopes) == 0 && e.Params["scope"] == "" {
		e.Scopes = scopes
	}
	return e
}
