// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

// FakePlatform is a test double for a platform's auth and sync services.
//
// Playlists and Tracks are served as-is. Errors set on the struct are returned by the matching
// method. Calls are counted so tests can assert that no network-equivalent work happened.
type FakePlatform struct {
	Name    models.Platform
	Account *models.RemoteIdentity
	Token   *oauth2.Token

	Playlists []models.RemotePlaylist
	Tracks    map[string][]models.RemoteTrack

	ExchangeErr error
	IdentityErr error
	RefreshErr  error
	FetchErr    error

	// RefreshedAccess is handed out when a stale token is refreshed.
	RefreshedAccess string
	Now             func() time.Time

	mu              sync.Mutex
	ExchangeCalls   int
	RefreshCalls    int
	PlaylistCalls   int
	TrackCalls      int
	LastAccessToken string
}

// NewFakePlatform creates a fake that links identity id on platform p.
func NewFakePlatform(p models.Platform, id, displayName string) *FakePlatform {
	exp := time.Now().Add(time.Hour)
	return &FakePlatform{
		Name:            p,
		Account:         &models.RemoteIdentity{ID: id, DisplayName: displayName},
		Token:           &oauth2.Token{AccessToken: "access-" + id, RefreshToken: "refresh-" + id, Expiry: exp},
		Tracks:          make(map[string][]models.RemoteTrack),
		RefreshedAccess: "refreshed-" + id,
	}
}

func (f *FakePlatform) Platform() models.Platform { return f.Name }

func (f *FakePlatform) AuthCodeURL(state string) string {
	return fmt.Sprintf("https://auth.test/%s?state=%s", f.Name, state)
}

func (f *FakePlatform) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ExchangeCalls++
	if f.ExchangeErr != nil {
		return nil, f.ExchangeErr
	}
	if code == "" {
		return nil, &shared.TokenRefreshError{Platform: string(f.Name), Reason: "missing code"}
	}
	tok := *f.Token
	return &tok, nil
}

func (f *FakePlatform) Identity(ctx context.Context, accessToken string) (*models.RemoteIdentity, error) {
	if f.IdentityErr != nil {
		return nil, f.IdentityErr
	}
	id := *f.Account
	return &id, nil
}

func (f *FakePlatform) Refresh(ctx context.Context, token *models.Token) (string, error) {
	now := time.Now()
	if f.Now != nil {
		now = f.Now()
	}
	if token.Fresh(now) {
		return token.AccessToken, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshCalls++
	if f.RefreshErr != nil {
		return "", f.RefreshErr
	}
	exp := now.Add(time.Hour)
	token.AccessToken = f.RefreshedAccess
	token.ExpiresAt = &exp
	return token.AccessToken, nil
}

func (f *FakePlatform) FetchPlaylists(ctx context.Context, accessToken string) ([]models.RemotePlaylist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PlaylistCalls++
	f.LastAccessToken = accessToken
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	return append([]models.RemotePlaylist(nil), f.Playlists...), nil
}

func (f *FakePlatform) FetchTracks(ctx context.Context, accessToken, playlistID string) ([]models.RemoteTrack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TrackCalls++
	f.LastAccessToken = accessToken
	if f.FetchErr != nil {
		return nil, f.FetchErr
	}
	return append([]models.RemoteTrack(nil), f.Tracks[playlistID]...), nil
}

// MemoryTokenStore is an in-memory token store that counts writes.
type MemoryTokenStore struct {
	mu      sync.Mutex
	tokens  map[string]models.Token
	Updates int
}

func NewMemoryTokenStore(tokens ...*models.Token) *MemoryTokenStore {
	s := &MemoryTokenStore{tokens: make(map[string]models.Token)}
	for _, t := range tokens {
		s.tokens[t.ID] = *t
	}
	return s
}

func (s *MemoryTokenStore) Get(ctx context.Context, id string) (*models.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[id]
	if !ok {
		return nil, fmt.Errorf("%w: token %s", shared.ErrNotFound, id)
	}
	return &t, nil
}

func (s *MemoryTokenStore) Update(ctx context.Context, token *models.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.ID]; !ok {
		return fmt.Errorf("%w: token %s", shared.ErrNotFound, token.ID)
	}
	s.tokens[token.ID] = *token
	s.Updates++
	return nil
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

var _ io.ReadCloser = (*FCloser)(nil)

func MustGetwd(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	return wd
}

func MustChdir(t *testing.T, dir string) {
	t.Helper()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to change directory to %s: %v", dir, err)
	}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func AssertDirExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		t.Errorf("Directory does not exist: %s", path)
		return
	}
	if !info.IsDir() {
		t.Errorf("Path is not a directory: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
