package services

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunelink/internal/models"
)

func testEndpoint(p models.Platform, base string) Endpoint {
	return Endpoint{
		Platform:     p,
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURI:  "http://127.0.0.1:3000/callback/" + string(p),
		AuthURL:      base + "/authorize",
		TokenURL:     base + "/token",
		UserInfoURL:  base + "/me",
		APIURL:       base,
	}
}

func testOptions(srv *httptest.Server) Options {
	return Options{
		HTTPClient: srv.Client(),
		Logger:     log.New(io.Discard),
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

// sleepRecorder captures requested backoff durations without waiting.
type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}

func writeJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if _, err := io.WriteString(w, body); err != nil {
		t.Errorf("failed to write response: %v", err)
	}
}
