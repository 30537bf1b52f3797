package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
	tu "github.com/desertthunder/tunelink/internal/testing"
)

// tokenServer answers the token endpoint with respond and counts the calls.
func tokenServer(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			calls.Add(1)
			if err := r.ParseForm(); err != nil {
				t.Errorf("failed to parse token form: %v", err)
			}
			respond(w, r)
		case "/me":
			if r.Header.Get("Authorization") != "Bearer live-access" {
				w.WriteHeader(http.StatusUnauthorized)
				writeJSON(t, w, `{"error":{"status":401,"message":"Invalid access token"}}`)
				return
			}
			writeJSON(t, w, `{"id":"spotify-user","display_name":"Listener","email":"l@example.com"}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func staleToken() *models.Token {
	past := time.Now().Add(-time.Minute).UTC()
	return &models.Token{ID: "tok-1", AccessToken: "old-access", RefreshToken: "old-refresh", ExpiresAt: &past}
}

func TestOAuthService(t *testing.T) {
	t.Run("AuthCodeURL", func(t *testing.T) {
		e := testEndpoint(models.Spotify, "https://accounts.test")
		e.Params = map[string]string{"show_dialog": "true"}
		svc := NewSpotifyService(e, Options{})

		got := svc.AuthCodeURL("state-123")
		for _, want := range []string{"client_id=cid", "state=state-123", "show_dialog=true", "redirect_uri=", "response_type=code"} {
			if !strings.Contains(got, want) {
				t.Errorf("expected %q in %s", want, got)
			}
		}
	})

	t.Run("Exchange", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Form.Get("grant_type") != "authorization_code" || r.Form.Get("code") != "the-code" {
					t.Errorf("unexpected form: %v", r.Form)
				}
				if r.Form.Get("client_id") != "cid" || r.Form.Get("client_secret") != "secret" {
					t.Errorf("expected client credentials in body, got %v", r.Form)
				}
				writeJSON(t, w, `{"access_token":"live-access","refresh_token":"r1","token_type":"Bearer","expires_in":3600}`)
			})
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), testOptions(srv))

			tok, err := svc.Exchange(context.Background(), "the-code")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tok.AccessToken != "live-access" || tok.RefreshToken != "r1" {
				t.Errorf("unexpected token: %+v", tok)
			}
			if calls.Load() != 1 {
				t.Errorf("expected 1 token call, got %d", calls.Load())
			}
		})

		t.Run("Missing Code", func(t *testing.T) {
			srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {})
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), testOptions(srv))

			_, err := svc.Exchange(context.Background(), "  ")
			var tre *shared.TokenRefreshError
			if !errors.As(err, &tre) {
				t.Fatalf("expected TokenRefreshError, got %v", err)
			}
			if calls.Load() != 0 {
				t.Errorf("expected no token call, got %d", calls.Load())
			}
		})

		t.Run("Rejected Code", func(t *testing.T) {
			srv, _ := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid authorization code"}`))
			})
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), testOptions(srv))

			_, err := svc.Exchange(context.Background(), "bad")
			var tre *shared.TokenRefreshError
			if !errors.As(err, &tre) {
				t.Fatalf("expected TokenRefreshError, got %v", err)
			}
			if tre.Status != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", tre.Status)
			}
			if !strings.Contains(tre.Body, "invalid_grant") {
				t.Errorf("expected body to be kept, got %q", tre.Body)
			}
			if !errors.Is(err, shared.ErrRefreshFailed) {
				t.Error("expected error to wrap ErrRefreshFailed")
			}
		})
	})

	t.Run("Identity", func(t *testing.T) {
		srv, _ := tokenServer(t, nil)
		svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), testOptions(srv))

		t.Run("Success", func(t *testing.T) {
			id, err := svc.Identity(context.Background(), "live-access")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if id.ID != "spotify-user" || id.DisplayName != "Listener" || id.Email != "l@example.com" {
				t.Errorf("unexpected identity: %+v", id)
			}
		})

		t.Run("Unauthorized", func(t *testing.T) {
			_, err := svc.Identity(context.Background(), "revoked")
			var tre *shared.TokenRefreshError
			if !errors.As(err, &tre) {
				t.Fatalf("expected TokenRefreshError, got %v", err)
			}
			if tre.Status != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", tre.Status)
			}
		})
	})

	t.Run("Refresh", func(t *testing.T) {
		t.Run("Fresh Token Makes No Call", func(t *testing.T) {
			srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				t.Error("token endpoint should not be called")
			})
			future := time.Now().Add(time.Hour)
			token := &models.Token{ID: "tok-1", AccessToken: "still-good", RefreshToken: "r", ExpiresAt: &future}
			store := tu.NewMemoryTokenStore(token)
			opts := testOptions(srv)
			opts.Store = store
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), opts)

			got, err := svc.Refresh(context.Background(), token)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != "still-good" {
				t.Errorf("expected stored access token, got %s", got)
			}
			if calls.Load() != 0 || store.Updates != 0 {
				t.Errorf("expected no I/O, got %d calls and %d writes", calls.Load(), store.Updates)
			}
		})

		t.Run("Missing Refresh Token", func(t *testing.T) {
			srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {})
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), testOptions(srv))

			token := staleToken()
			token.RefreshToken = ""
			_, err := svc.Refresh(context.Background(), token)
			var tre *shared.TokenRefreshError
			if !errors.As(err, &tre) {
				t.Fatalf("expected TokenRefreshError, got %v", err)
			}
			if calls.Load() != 0 {
				t.Errorf("expected no token call, got %d", calls.Load())
			}
		})

		t.Run("Keeps Refresh Token When Omitted", func(t *testing.T) {
			srv, _ := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Form.Get("grant_type") != "refresh_token" || r.Form.Get("refresh_token") != "old-refresh" {
					t.Errorf("unexpected form: %v", r.Form)
				}
				writeJSON(t, w, `{"access_token":"new-access","token_type":"Bearer","expires_in":1800}`)
			})
			token := staleToken()
			store := tu.NewMemoryTokenStore(token)
			opts := testOptions(srv)
			opts.Store = store
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), opts)

			got, err := svc.Refresh(context.Background(), token)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != "new-access" || token.AccessToken != "new-access" {
				t.Errorf("expected new access token, got %s / %s", got, token.AccessToken)
			}
			if token.RefreshToken != "old-refresh" {
				t.Errorf("expected refresh token to be kept, got %s", token.RefreshToken)
			}
			if !token.Fresh(time.Now()) {
				t.Error("expected refreshed token to be fresh")
			}
			if store.Updates != 1 {
				t.Errorf("expected one store write, got %d", store.Updates)
			}

			saved, _ := store.Get(context.Background(), "tok-1")
			if saved.AccessToken != "new-access" || saved.RefreshToken != "old-refresh" {
				t.Errorf("unexpected stored token: %+v", saved)
			}
		})

		t.Run("Rotated Refresh Token", func(t *testing.T) {
			srv, _ := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, `{"access_token":"new-access","refresh_token":"rotated","expires_in":3600}`)
			})
			token := staleToken()
			store := tu.NewMemoryTokenStore(token)
			opts := testOptions(srv)
			opts.Store = store
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), opts)

			if _, err := svc.Refresh(context.Background(), token); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token.RefreshToken != "rotated" {
				t.Errorf("expected rotated refresh token, got %s", token.RefreshToken)
			}
		})

		t.Run("Default Expiry", func(t *testing.T) {
			srv, _ := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, `{"access_token":"new-access"}`)
			})
			now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
			past := now.Add(-time.Second)
			token := &models.Token{ID: "tok-1", AccessToken: "old", RefreshToken: "r", ExpiresAt: &past}
			opts := testOptions(srv)
			opts.Store = tu.NewMemoryTokenStore(token)
			opts.Clock = func() time.Time { return now }
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), opts)

			if _, err := svc.Refresh(context.Background(), token); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			want := now.Add(time.Hour)
			if token.ExpiresAt == nil || !token.ExpiresAt.Equal(want) {
				t.Errorf("expected expiry %v, got %v", want, token.ExpiresAt)
			}
		})

		t.Run("Rejected Refresh", func(t *testing.T) {
			srv, _ := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"invalid_grant","error_description":"Refresh token revoked"}`))
			})
			token := staleToken()
			store := tu.NewMemoryTokenStore(token)
			opts := testOptions(srv)
			opts.Store = store
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), opts)

			_, err := svc.Refresh(context.Background(), token)
			var tre *shared.TokenRefreshError
			if !errors.As(err, &tre) {
				t.Fatalf("expected TokenRefreshError, got %v", err)
			}
			if tre.Status != http.StatusBadRequest || !strings.Contains(tre.Body, "revoked") {
				t.Errorf("expected status and body, got %d %q", tre.Status, tre.Body)
			}
			if store.Updates != 0 {
				t.Errorf("expected no store write, got %d", store.Updates)
			}
			if token.AccessToken != "old-access" {
				t.Errorf("expected token untouched, got %s", token.AccessToken)
			}
		})

		t.Run("Concurrent Refreshes Share One Grant", func(t *testing.T) {
			release := make(chan struct{})
			srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				<-release
				writeJSON(t, w, `{"access_token":"new-access","refresh_token":"rotated","expires_in":3600}`)
			})
			store := tu.NewMemoryTokenStore(staleToken())
			opts := testOptions(srv)
			opts.Store = store
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), opts)

			const n = 8
			var wg sync.WaitGroup
			results := make([]string, n)
			errs := make([]error, n)
			for i := range n {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					results[i], errs[i] = svc.Refresh(context.Background(), staleToken())
				}(i)
			}
			time.Sleep(20 * time.Millisecond)
			close(release)
			wg.Wait()

			for i := range n {
				if errs[i] != nil {
					t.Fatalf("refresh %d failed: %v", i, errs[i])
				}
				if results[i] != "new-access" {
					t.Errorf("refresh %d got %s", i, results[i])
				}
			}
			if calls.Load() != 1 {
				t.Errorf("expected 1 token call, got %d", calls.Load())
			}
			if store.Updates != 1 {
				t.Errorf("expected 1 store write, got %d", store.Updates)
			}
		})

		t.Run("Cancelled Caller Does Not Fail Waiters", func(t *testing.T) {
			arrived := make(chan struct{}, 1)
			release := make(chan struct{})
			srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				arrived <- struct{}{}
				<-release
				writeJSON(t, w, `{"access_token":"new-access","expires_in":3600}`)
			})
			store := tu.NewMemoryTokenStore(staleToken())
			opts := testOptions(srv)
			opts.Store = store
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), opts)

			ctx, cancel := context.WithCancel(context.Background())
			firstErr := make(chan error, 1)
			go func() {
				_, err := svc.Refresh(ctx, staleToken())
				firstErr <- err
			}()
			<-arrived

			secondTok := make(chan string, 1)
			secondErr := make(chan error, 1)
			go func() {
				got, err := svc.Refresh(context.Background(), staleToken())
				secondTok <- got
				secondErr <- err
			}()
			time.Sleep(20 * time.Millisecond)

			cancel()
			if err := <-firstErr; !errors.Is(err, context.Canceled) {
				t.Errorf("expected cancelled caller to see context.Canceled, got %v", err)
			}
			close(release)

			got, err := <-secondTok, <-secondErr
			if err != nil {
				t.Fatalf("expected live caller to succeed, got %v", err)
			}
			if got != "new-access" {
				t.Errorf("expected new-access, got %s", got)
			}
			if calls.Load() != 1 {
				t.Errorf("expected 1 token call, got %d", calls.Load())
			}
			if store.Updates != 1 {
				t.Errorf("expected refreshed token to be saved, got %d writes", store.Updates)
			}
		})

		t.Run("Sequential Refresh Sees Rotated Token", func(t *testing.T) {
			srv, calls := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, `{"access_token":"new-access","refresh_token":"rotated","expires_in":3600}`)
			})
			store := tu.NewMemoryTokenStore(staleToken())
			opts := testOptions(srv)
			opts.Store = store
			svc := NewSpotifyService(testEndpoint(models.Spotify, srv.URL), opts)

			if _, err := svc.Refresh(context.Background(), staleToken()); err != nil {
				t.Fatalf("first refresh failed: %v", err)
			}

			second := staleToken()
			got, err := svc.Refresh(context.Background(), second)
			if err != nil {
				t.Fatalf("second refresh failed: %v", err)
			}
			if got != "new-access" || second.RefreshToken != "rotated" {
				t.Errorf("expected stored rotation, got %s / %s", got, second.RefreshToken)
			}
			if calls.Load() != 1 {
				t.Errorf("expected 1 token call, got %d", calls.Load())
			}
		})
	})
}
