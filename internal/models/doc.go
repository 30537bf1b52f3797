// Package models defines the domain entities of the account linker.
//
// The package contains two categories of types:
//
// 1. Remote records: lightweight structs describing data fetched from a music platform
//   - [RemoteIdentity] : the platform account behind an access token
//   - [RemotePlaylist] : playlist metadata from a listing endpoint
//   - [RemoteTrack] : one entry of a playlist's track listing
//
// 2. Persistent entities: rows owned by the repositories package
//   - [User] : local accounts, optionally carrying a public username
//   - [Token] : OAuth credentials for one platform link
//   - [Connection] : the link between a user and a platform account
//   - [Playlist], [Track], [PlaylistItem] : mirrored playlists, deduplicated tracks and their ordering
//   - [Friend] : directed friend-request edges
//
// [Session] is the caller-owned login state returned by the account linker.
package models
