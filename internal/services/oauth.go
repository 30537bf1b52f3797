package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

// defaultExpiresIn applies when a token response omits expires_in.
const defaultExpiresIn = time.Hour

// identityParser decodes a user-info response body.
type identityParser func(body []byte) (*models.RemoteIdentity, error)

// oauthService implements the platform-independent half of [AuthService].
type oauthService struct {
	endpoint Endpoint
	config   *oauth2.Config
	client   *http.Client
	store    TokenStore
	parse    identityParser
	now      func() time.Time
	logger   *log.Logger

	flights singleflight.Group
}

func newOAuthService(e Endpoint, opts Options, parse identityParser) *oauthService {
	return &oauthService{
		endpoint: e,
		config:   e.OAuth2Config(),
		client:   opts.httpClient(),
		store:    opts.Store,
		parse:    parse,
		now:      opts.clock(),
		logger:   shared.WithLogger(opts.logger(), "platform", e.Platform),
	}
}

// Platform names the platform this service talks to.
func (s *oauthService) Platform() models.Platform { return s.endpoint.Platform }

// AuthCodeURL builds the authorize URL with the configured params.
func (s *oauthService) AuthCodeURL(state string) string {
	return s.config.AuthCodeURL(state, s.endpoint.AuthCodeOptions()...)
}

// Exchange runs the authorization-code grant.
func (s *oauthService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &shared.TokenRefreshError{Platform: string(s.Platform()), Reason: "missing code"}
	}

	tok, err := s.config.Exchange(s.clientContext(ctx), code)
	if err != nil {
		return nil, s.tokenError("code exchange", err)
	}
	return tok, nil
}

// Identity fetches the account behind accessToken from the user-info endpoint.
func (s *oauthService) Identity(ctx context.Context, accessToken string) (*models.RemoteIdentity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &shared.TokenRefreshError{Platform: string(s.Platform()), Reason: "identity lookup: " + err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read identity response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &shared.TokenRefreshError{
			Platform: string(s.Platform()),
			Reason:   "identity lookup",
			Status:   resp.StatusCode,
			Body:     truncate(string(body)),
		}
	}

	id, err := s.parse(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode identity: %w", err)
	}
	if id.ID == "" {
		return nil, &shared.TokenRefreshError{Platform: string(s.Platform()), Reason: "identity response has no account id"}
	}
	return id, nil
}

// Refresh returns token.AccessToken while it is unexpired. Otherwise it runs the refresh-token
// grant, persists the result in one write and copies it back into token.
//
// Concurrent refreshes of the same token share one grant. The stored token is reloaded inside
// the flight, so a refresh that starts after another has finished sees the rotated credentials
// and makes no network call. A caller whose ctx ends stops waiting without failing the others.
func (s *oauthService) Refresh(ctx context.Context, token *models.Token) (string, error) {
	if token.Fresh(s.now()) {
		return token.AccessToken, nil
	}
	if token.RefreshToken == "" {
		return "", &shared.TokenRefreshError{Platform: string(s.Platform()), Reason: shared.ErrNoRefreshToken.Error()}
	}

	key := token.ID
	if key == "" {
		key = "refresh:" + token.RefreshToken
	}

	snapshot := *token
	flight := s.flights.DoChan(key, func() (any, error) {
		fctx, cancel := s.flightContext(ctx)
		defer cancel()
		return s.refresh(fctx, &snapshot)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res = <-flight:
	}
	if res.Err != nil {
		return "", res.Err
	}
	if res.Shared {
		s.logger.Debug("shared in-flight refresh", "token", token.ID)
	}

	*token = *res.Val.(*models.Token)
	return token.AccessToken, nil
}

// flightContext detaches a shared refresh from the caller that started it. Every waiter selects
// on its own context, and the grant itself is bounded by the client timeout.
func (s *oauthService) flightContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.client.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (s *oauthService) refresh(ctx context.Context, token *models.Token) (*models.Token, error) {
	current := *token
	if s.store != nil && token.ID != "" {
		stored, err := s.store.Get(ctx, token.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to reload token: %w", err)
		}
		if stored.Fresh(s.now()) {
			return stored, nil
		}
		if stored.RefreshToken == "" {
			return nil, &shared.TokenRefreshError{Platform: string(s.Platform()), Reason: shared.ErrNoRefreshToken.Error()}
		}
		current = *stored
	}

	src := s.config.TokenSource(s.clientContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, s.tokenError("refresh", err)
	}

	current.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		current.RefreshToken = tok.RefreshToken
	}
	current.ExpiresAt = expiryOf(tok, s.now())
	current.Extra = mergeExtra(current.Extra, tok)

	if s.store != nil && current.ID != "" {
		if err := s.store.Update(ctx, &current); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
		}
	}

	s.logger.Info("refreshed access token", "token", current.ID, "expires_at", current.ExpiresAt)
	return &current, nil
}

// clientContext routes oauth2's token calls through the service's HTTP client.
func (s *oauthService) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, s.client)
}

// tokenError maps an oauth2 failure onto [shared.TokenRefreshError], keeping status and body
// when the platform answered.
func (s *oauthService) tokenError(stage string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return &shared.TokenRefreshError{
			Platform: string(s.Platform()),
			Reason:   stage,
			Status:   status,
			Body:     truncate(string(re.Body)),
		}
	}
	return &shared.TokenRefreshError{Platform: string(s.Platform()), Reason: stage + ": " + err.Error()}
}

// expiryOf resolves the absolute expiry of a token response, applying the one hour default when
// the platform sent no expires_in.
func expiryOf(tok *oauth2.Token, now time.Time) *time.Time {
	exp := tok.Expiry
	if exp.IsZero() {
		exp = now.Add(defaultExpiresIn)
	}
	exp = exp.UTC()
	return &exp
}

// TokenFromOAuth2 converts a code-exchange response into a storable token.
func TokenFromOAuth2(tok *oauth2.Token, now time.Time) *models.Token {
	return &models.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiryOf(tok, now),
		Extra:        mergeExtra(nil, tok),
	}
}

func mergeExtra(extra map[string]any, tok *oauth2.Token) map[string]any {
	out := make(map[string]any, len(extra)+2)
	for k, v := range extra {
		out[k] = v
	}
	if tok.TokenType != "" {
		out["token_type"] = tok.TokenType
	}
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		out["scope"] = scope
	}
	return out
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}
