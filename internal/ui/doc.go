// Package ui implements an interactive terminal browser for mirrored playlists using bubbletea's Elm architecture.
//
// The TUI walks through:
//  1. [PlaylistListView] : playlists of one linked connection, synced on start
//  2. [TrackListView] : the selected playlist's tracks, synced on open
//  3. [ConfirmView] : confirm exporting the playlist
//  4. [ExportView] : progress of the export
//  5. [ResultView] : where the file landed, or why it failed
//
// The [Model] implements bubbletea's Init/Update/View pattern, receiving messages via the [Msg] union type.
// Progress updates flow through a channel from the syncer, so status reporting never blocks the sync.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help from bubbles/help.
package ui
