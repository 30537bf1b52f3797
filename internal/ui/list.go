package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/tunelink/internal/formatter"
	"github.com/desertthunder/tunelink/internal/models"
)

var (
	_ list.Item = playlistItem{}
	_ list.Item = trackItem{}
)

// playlistItem wraps [models.Playlist] to implement [list.Item].
type playlistItem struct {
	playlist *models.Playlist
}

func (i playlistItem) FilterValue() string { return i.playlist.Name }
func (i playlistItem) Title() string       { return i.playlist.Name }
func (i playlistItem) Description() string {
	desc := formatter.Visibility(i.playlist.IsPublic)
	if i.playlist.TracksSyncedAt != nil {
		desc = fmt.Sprintf("%s • synced %s", desc, i.playlist.TracksSyncedAt.Local().Format("Jan 2 15:04"))
	}
	return desc
}

// trackItem wraps [models.PlaylistItem] to implement [list.Item].
type trackItem struct {
	item *models.PlaylistItem
}

func (i trackItem) track() models.Track {
	if i.item.Track == nil {
		return models.Track{}
	}
	return *i.item.Track
}

func (i trackItem) FilterValue() string { return i.track().Title }
func (i trackItem) Title() string {
	return fmt.Sprintf("%d. %s", i.item.Position+1, i.track().Title)
}
func (i trackItem) Description() string {
	t := i.track()
	desc := t.Artist
	if t.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, t.Album)
	}
	if t.DurationDisplay != "" {
		desc = fmt.Sprintf("%s • %s", desc, t.DurationDisplay)
	}
	return desc
}
