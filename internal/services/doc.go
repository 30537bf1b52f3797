// Package services implements the per-platform capabilities behind account linking and playlist sync.
//
// # Capabilities
//
// Each platform provides an [AuthService] (authorize URL, code exchange, identity lookup and token
// refresh) and a [PlaylistSyncService] (paginated playlist and track listing). [SpotifyService] and
// [YouTubeService] implement both. Callers obtain them through [Factory], which resolves platform
// names case-insensitively and fails with [shared.UnsupportedPlatformError] instead of returning nil.
//
// # Registry
//
// [Registry] holds the OAuth client and endpoints per platform, built from the [platforms.*] tables of
// the TOML config. Empty endpoints fall back to the public defaults of the platform; Spotify's come
// from the zmb3/spotify auth package.
//
// # Refresh
//
// [AuthService.Refresh] returns the stored access token untouched while it is unexpired. Otherwise it
// runs the refresh-token grant through golang.org/x/oauth2 and persists the result through a
// [TokenStore]. Refreshes of the same token are collapsed with singleflight, and the token is reloaded
// inside the flight so a caller that queued behind a refresh sees the rotated token.
//
// # Fetching
//
// Listing endpoints are paged (offset/limit for Spotify, page tokens for YouTube). Every request waits
// on a per-platform rate limiter. A 429 response sleeps for Retry-After (5s when absent) and retries
// the same page; any other non-200 response fails with [shared.PlaylistFetchError].
package services
