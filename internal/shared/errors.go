package shared

import (
	"fmt"
	"strings"
)

var (
	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed          = fmt.Errorf("authentication failed")
	ErrNotAuthenticated    = fmt.Errorf("not authenticated")
	ErrRefreshFailed       = fmt.Errorf("token refresh failed")
	ErrNoRefreshToken      = fmt.Errorf("no refresh token available")
	ErrStateMismatch       = fmt.Errorf("oauth state mismatch")
	ErrUnsupportedPlatform = fmt.Errorf("unsupported platform")

	// API and service errors
	ErrAPIRequest       = fmt.Errorf("API request failed")
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrNotFound         = fmt.Errorf("record not found")
	ErrForbidden        = fmt.Errorf("forbidden")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrConflict        = fmt.Errorf("conflict")

	// Social graph errors
	ErrFriendRequest = fmt.Errorf("friend request failed")
)

// TokenRefreshError reports a failed code exchange, identity lookup or refresh.
//
// Status and Body are set when the failure came from a platform response.
type TokenRefreshError struct {
	Platform string
	Reason   string
	Status   int
	Body     string
}

func (e *TokenRefreshError) Error() string {
	var b strings.Builder
	b.WriteString("token refresh error")
	if e.Platform != "" {
		b.WriteString(" (" + e.Platform + ")")
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Body != "" {
		b.WriteString(": " + e.Body)
	}
	return b.String()
}

func (e *TokenRefreshError) Unwrap() error { return ErrRefreshFailed }

// PlaylistFetchError reports a non-success response from a platform listing endpoint, including
// a 429 that outlived its retries.
type PlaylistFetchError struct {
	URL    string
	Status int
	Body   string
}

func (e *PlaylistFetchError) Error() string {
	return fmt.Sprintf("playlist fetch failed: status %d: %s", e.Status, e.Body)
}

func (e *PlaylistFetchError) Unwrap() error { return ErrAPIRequest }

// UnsupportedPlatformError reports a platform name with no registry entry or service.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform: %q", e.Platform)
}

func (e *UnsupportedPlatformError) Unwrap() error { return ErrUnsupportedPlatform }
