package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	PlaylistListView ViewState = iota
	TrackListView
	ConfirmView
	ExportView
	ResultView
)

// Syncer is the slice of [tasks.Syncer] the browser drives.
type Syncer interface {
	SyncPlaylists(ctx context.Context, conn *models.Connection, progress chan<- tasks.ProgressUpdate) ([]*models.Playlist, error)
	SyncPlaylistDetail(ctx context.Context, viewerID, playlistID string, progress chan<- tasks.ProgressUpdate) (*tasks.PlaylistDetail, error)
	BulkExport(ctx context.Context, progress chan<- tasks.ProgressUpdate, viewerID string, ids []string, opts tasks.ExportOpts) (*tasks.BulkExportResult, error)
}

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	syncer       Syncer
	conn         *models.Connection
	exportOpts   tasks.ExportOpts
	width        int
	height       int
	playlistList list.Model
	trackList    list.Model
	selected     *tasks.PlaylistDetail
	progressChan chan tasks.ProgressUpdate
	doneChan     chan exportPayload
	progress     tasks.ProgressUpdate
	result       *tasks.BulkExportResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a browser over conn's playlists. Exports use opts.
func NewModel(ctx context.Context, syncer Syncer, conn *models.Connection, opts tasks.ExportOpts) *Model {
	return &Model{
		ctx:          ctx,
		view:         PlaylistListView,
		syncer:       syncer,
		conn:         conn,
		exportOpts:   opts,
		playlistList: list.New(nil, list.NewDefaultDelegate(), 0, 0),
		trackList:    list.New(nil, list.NewDefaultDelegate(), 0, 0),
		help:         help.New(),
		keys:         newKeyMap(),
	}
}

// Init syncs the connection's playlists.
func (m *Model) Init() tea.Cmd {
	return m.fetchPlaylists()
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.playlistList.SetSize(msg.Width-4, msg.Height-8)
		m.trackList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case PlaylistListView:
			return m.handlePlaylistListKeys(msg)
		case TrackListView:
			return m.handleTrackListKeys(msg)
		case ConfirmView:
			return m.handleConfirmKeys(msg)
		case ResultView:
			return m.handleResultKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	return m.updateLists(msg)
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgPlaylistsFetched:
		data := msg.data.(playlistsPayload)
		if data.err != nil {
			m.err = data.err
			return m, nil
		}
		items := make([]list.Item, len(data.playlists))
		for i, pl := range data.playlists {
			items[i] = playlistItem{playlist: pl}
		}
		m.playlistList.SetItems(items)
		m.playlistList.Title = fmt.Sprintf("%s Playlists", m.conn.Platform.Title())
		m.playlistList.SetSize(m.width-4, m.height-8)
		return m, nil

	case MsgTracksFetched:
		data := msg.data.(tracksPayload)
		if data.err != nil {
			m.err = data.err
			m.view = PlaylistListView
			return m, nil
		}
		m.err = nil
		m.selected = data.detail
		items := make([]list.Item, len(data.detail.Items))
		for i, it := range data.detail.Items {
			items[i] = trackItem{item: it}
		}
		m.trackList.SetItems(items)
		m.trackList.ResetSelected()
		m.trackList.Title = fmt.Sprintf("Tracks in '%s'", data.detail.Playlist.Name)
		m.trackList.SetSize(m.width-4, m.height-8)
		m.view = TrackListView
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgExportComplete:
		data := msg.data.(exportPayload)
		m.result = data.result
		m.err = data.err
		m.progressChan = nil
		m.doneChan = nil
		m.view = ResultView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	if m.err != nil && m.view != ResultView {
		return styles.err.Render(fmt.Sprintf("Error: %v\n\nPress q to quit", m.err))
	}

	switch m.view {
	case PlaylistListView:
		return m.renderPlaylistList()
	case TrackListView:
		return m.renderTrackList()
	case ConfirmView:
		return m.renderConfirm()
	case ExportView:
		return m.renderExport()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) handlePlaylistListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if pl, ok := m.playlistList.SelectedItem().(playlistItem); ok {
			return m, m.fetchTracks(pl.playlist.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.playlistList, cmd = m.playlistList.Update(msg)
	return m, cmd
}

func (m *Model) handleTrackListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = PlaylistListView
		return m, nil
	case key.Matches(msg, m.keys.export):
		m.view = ConfirmView
		return m, nil
	}

	var cmd tea.Cmd
	m.trackList, cmd = m.trackList.Update(msg)
	return m, cmd
}

func (m *Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit), key.Matches(msg, m.keys.no):
		m.view = TrackListView
		return m, nil
	case key.Matches(msg, m.keys.yes):
		m.view = ExportView
		return m, m.startExport()
	}
	return m, nil
}

func (m *Model) handleResultKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.restart):
		m.view = PlaylistListView
		m.selected = nil
		m.result = nil
		m.err = nil
		return m, nil
	}
	return m, nil
}

func (m *Model) updateLists(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.view {
	case PlaylistListView:
		m.playlistList, cmd = m.playlistList.Update(msg)
	case TrackListView:
		m.trackList, cmd = m.trackList.Update(msg)
	}
	return m, cmd
}

func (m *Model) fetchPlaylists() tea.Cmd {
	return func() tea.Msg {
		playlists, err := m.syncer.SyncPlaylists(m.ctx, m.conn, nil)
		return playlistsFetchedMsg(playlists, err)
	}
}

func (m *Model) fetchTracks(playlistID string) tea.Cmd {
	return func() tea.Msg {
		detail, err := m.syncer.SyncPlaylistDetail(m.ctx, m.conn.UserID, playlistID, nil)
		return tracksFetchedMsg(detail, err)
	}
}

// startExport runs the export in the background. The progress channel is closed once the
// result has been handed to doneChan.
func (m *Model) startExport() tea.Cmd {
	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan exportPayload, 1)
	m.progressChan, m.doneChan = progress, done

	opts := m.exportOpts
	opts.Refresh = false
	id := m.selected.Playlist.ID

	go func() {
		result, err := m.syncer.BulkExport(m.ctx, progress, m.conn.UserID, []string{id}, opts)
		done <- exportPayload{result, err}
		close(progress)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progress, done := m.progressChan, m.doneChan
	return func() tea.Msg {
		if progress == nil {
			return exportCompleteMsg(nil, nil)
		}
		update, ok := <-progress
		if !ok {
			res := <-done
			return exportCompleteMsg(res.result, res.err)
		}
		return progressUpdateMsg(update)
	}
}

func (m *Model) renderPlaylistList() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.enter, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.playlistList.View(), helpView)
}

func (m *Model) renderTrackList() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.export, m.keys.back, m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", m.trackList.View(), helpView)
}

func (m *Model) renderConfirm() string {
	pl := m.selected.Playlist
	title := styles.title.Render(fmt.Sprintf("Export '%s'?", pl.Name))
	info := fmt.Sprintf("\nTracks: %d\nFormat: %s\n", len(m.selected.Items), m.exportOpts.Format)
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.yes, m.keys.no, m.keys.quit})
	return fmt.Sprintf("%s\n%s\n%s", title, info, helpView)
}

func (m *Model) renderExport() string {
	title := styles.title.Render("Exporting Playlist")
	msg := m.progress.Message
	if msg == "" {
		msg = "Working..."
	}
	return fmt.Sprintf("%s\n\n%s", title, msg)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.restart, m.keys.quit})

	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Export failed: %v", m.err)) + "\n\n" + helpView
	}
	if m.result == nil || len(m.result.Results) == 0 {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	res := m.result.Results[0]
	if !res.Success() {
		return styles.warn.Render(fmt.Sprintf("Could not export %s: %s", res.PlaylistName, res.Error)) + "\n\n" + helpView
	}

	title := styles.ok.Render("✓ Export Complete")
	info := fmt.Sprintf("\nPlaylist: %s\nTracks: %d\nFile: %s", res.PlaylistName, res.Tracks, res.Path)
	return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
}
