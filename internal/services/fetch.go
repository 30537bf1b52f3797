package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/desertthunder/tunelink/internal/shared"
)

// maxErrorBody bounds how much of a failed response is kept on the error.
const maxErrorBody = 4 << 10

const (
	// minRetryAfter floors a 429 backoff so a zero or past Retry-After cannot spin.
	minRetryAfter = time.Second
	// maxRateLimitRetries bounds consecutive 429s on one URL.
	maxRateLimitRetries = 8
)

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fetcher issues authenticated GETs against a listing API, honoring the rate limiter and 429 backoff.
type fetcher struct {
	client     *http.Client
	limiter    *rate.Limiter
	retryAfter time.Duration
	sleep      sleepFunc
	logger     *log.Logger
}

func newFetcher(client *http.Client, limiter *rate.Limiter, retryAfter time.Duration, sleep sleepFunc, logger *log.Logger) *fetcher {
	if retryAfter <= 0 {
		retryAfter = 5 * time.Second
	}
	if sleep == nil {
		sleep = sleepContext
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &fetcher{client: client, limiter: limiter, retryAfter: retryAfter, sleep: sleep, logger: logger}
}

// getJSON fetches rawURL and decodes a 200 response into out.
//
// A 429 sleeps for the server's Retry-After, at least minRetryAfter, and retries the same URL.
// After maxRateLimitRetries consecutive 429s, or any other non-200 response, it returns a
// [shared.PlaylistFetchError].
func (f *fetcher) getJSON(ctx context.Context, accessToken, rawURL string, out any) error {
	for attempt := 0; ; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := max(parseRetryAfter(resp.Header.Get("Retry-After"), f.retryAfter, time.Now()), minRetryAfter)
			drain(resp)
			if attempt >= maxRateLimitRetries {
				return &shared.PlaylistFetchError{URL: rawURL, Status: resp.StatusCode, Body: "rate limit retries exhausted"}
			}
			f.logger.Warn("rate limited, backing off", "url", rawURL, "retry_after", wait)
			if err := f.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			resp.Body.Close()
			return &shared.PlaylistFetchError{URL: rawURL, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}
}

// parseRetryAfter reads delay-seconds or an HTTP date, falling back to def.
func parseRetryAfter(v string, def time.Duration, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
		return 0
	}
	return def
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}
