package tasks

import (
	"fmt"

	"github.com/desertthunder/tunelink/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	RefreshToken Phase = iota
	FetchPlaylists
	ReconcilePlaylists
	FetchTracks
	ReconcileTracks
	ExportPlaylist
)

func (p Phase) String() string {
	switch p {
	case RefreshToken:
		return "refresh_token"
	case FetchPlaylists:
		return "fetch_playlists"
	case ReconcilePlaylists:
		return "reconcile_playlists"
	case FetchTracks:
		return "fetch_tracks"
	case ReconcileTracks:
		return "reconcile_tracks"
	case ExportPlaylist:
		return "export_playlist"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func refreshTokenUpdate(p models.Platform) ProgressUpdate {
	return ProgressUpdate{
		Phase:   RefreshToken,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Checking %s credentials...", p.Title()),
	}
}

func fetchPlaylistsUpdate(p models.Platform) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchPlaylists,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching playlists from %s...", p.Title()),
	}
}

func reconcilePlaylistsUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReconcilePlaylists,
		Step:    count,
		Total:   count,
		Message: fmt.Sprintf("Saving %d playlists...", count),
	}
}

func fetchTracksUpdate(pl *models.Playlist) ProgressUpdate {
	return ProgressUpdate{
		Phase:   FetchTracks,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Fetching tracks for %s...", pl.Name),
		Data:    pl,
	}
}

func reconcileTracksUpdate(pl *models.Playlist, kept, total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ReconcileTracks,
		Step:    kept,
		Total:   total,
		Message: fmt.Sprintf("Saved %d of %d tracks for %s", kept, total, pl.Name),
		Data:    pl,
	}
}

func exportCompletedUpdate(step, total int, name, path string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s (%s)", step, total, name, path),
	}
}

func exportFailedUpdate(step, total int, name string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   ExportPlaylist,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, name, err),
	}
}
