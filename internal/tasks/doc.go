// Package tasks orchestrates account linking and playlist sync on top of the platform services and
// the repositories.
//
// # Account Linking
//
// [AccountLinker.Link] drives the OAuth callback:
//
//  1. AwaitingCode → CodeReceived : the authorization code must be present
//  2. CodeReceived → TokenExchanged : authorization-code grant
//  3. TokenExchanged → IdentityFetched : user-info lookup with the new access token
//  4. IdentityFetched → ConnectionResolved : find or create user, token and connection in one transaction
//  5. ConnectionResolved → SessionEstablished : platform attached to the session and marked active
//
// Failures come back as a [LinkError] naming the state that was reached. The underlying typed error
// stays reachable with errors.As.
//
// # Sync
//
// [Syncer] refreshes the connection's token, fetches through the platform's sync service and
// reconciles the result into storage. Playlists are upserted by (platform, platform user, external id)
// and never deleted. Track listings are a full replace of the playlist's items. Each reconcile is one
// transaction; token refresh happens before it, outside any transaction.
//
// # Progress Reporting
//
// Sync and export accept an optional channel of [ProgressUpdate]. Sends use select with default so a
// slow reader never blocks the operation.
//
// # Bulk Export
//
// [Syncer.BulkExport] writes stored playlists to files with a bounded worker pool. Playlists can be
// re-synced first, in which case remote calls are paced by a rate limiter.
package tasks
