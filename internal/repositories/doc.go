// Package repositories implements SQLite persistence for all domain entities.
//
// Key Implementations:
//   - [UserRepository] : local accounts and public usernames
//   - [TokenRepository] : OAuth credentials, also the token store behind refresh
//   - [ConnectionRepository] : user to platform-account links, unique per (platform, platform user)
//   - [PlaylistRepository] : mirrored playlists, upserted by (platform, platform user, external id)
//   - [TrackRepository] : tracks deduplicated by (platform, platform track id)
//   - [PlaylistItemRepository] : ordered playlist membership, replaced wholesale on reconcile
//   - [FriendRepository] : friend-request edges and the friendship check
//
// Lookups that find nothing return errors wrapping [shared.ErrNotFound] (or
// [shared.ErrPlaylistNotFound] for playlists by ID).
package repositories
