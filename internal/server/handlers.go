package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/repositories"
	"github.com/desertthunder/tunelink/internal/shared"
	"github.com/desertthunder/tunelink/internal/tasks"
)

type sessionKey struct{}

type currentSession struct {
	id      string
	session *models.Session
}

// App serves the account linking, playlist and friend endpoints.
type App struct {
	resolver tasks.Resolver
	linker   *tasks.AccountLinker
	syncer   *tasks.Syncer
	store    *repositories.Store
	sessions *SessionStore
	logger   *log.Logger
}

// NewApp wires the linker and syncer over resolver and store.
func NewApp(resolver tasks.Resolver, store *repositories.Store, sessions *SessionStore, logger *log.Logger) *App {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &App{
		resolver: resolver,
		linker:   tasks.NewAccountLinker(resolver, store, logger),
		syncer:   tasks.NewSyncer(resolver, store, logger),
		store:    store,
		sessions: sessions,
		logger:   logger,
	}
}

// Mount registers the app routes.
func (a *App) Mount(r chi.Router) {
	r.Get("/login/{platform}", a.Login)
	r.Get("/callback/{platform}", a.Callback)
	r.Post("/logout", a.Logout)

	r.Group(func(r chi.Router) {
		r.Use(a.requireSession)

		r.Get("/me", a.Me)
		r.Post("/me/active/{platform}", a.SwitchPlatform)
		r.Post("/username", a.SetUsername)
		r.Get("/users", a.SearchUsers)

		r.Get("/playlists", a.Playlists)
		r.Get("/playlists/{id}", a.PlaylistDetail)

		r.Get("/friends", a.Friends)
		r.Get("/friends/requests", a.PendingRequests)
		r.Get("/friends/requests/sent", a.SentRequests)
		r.Post("/friends/requests", a.RequestFriend)
		r.Post("/friends/requests/{id}/{action}", a.RespondFriend)
	})
}

func (a *App) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, sess := a.sessions.FromRequest(r)
		if sess == nil || sess.UserID == "" {
			writeError(w, a.logger, shared.ErrNotAuthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, currentSession{id: id, session: sess})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) currentSession {
	cs, _ := ctx.Value(sessionKey{}).(currentSession)
	return cs
}

// Login redirects to the platform's consent page with a fresh state cookie.
func (a *App) Login(w http.ResponseWriter, r *http.Request) {
	platform := chi.URLParam(r, "platform")
	auth, err := a.resolver.ResolveAuth(platform)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	state, err := shared.GenerateState()
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	a.sessions.setState(w, auth.Platform(), state)
	http.Redirect(w, r, auth.AuthCodeURL(state), http.StatusFound)
}

// Callback completes the OAuth flow and stores the resulting session.
func (a *App) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	platform := chi.URLParam(r, "platform")
	p, ok := models.ParsePlatform(platform)
	if !ok {
		writeError(w, a.logger, &shared.UnsupportedPlatformError{Platform: platform})
		return
	}

	expected := a.sessions.takeState(w, r, p)
	if e := q.Get("error"); e != "" {
		writeError(w, a.logger, fmt.Errorf("%w: %s", shared.ErrAuthFailed, e))
		return
	}
	if expected == "" || q.Get("state") != expected {
		writeError(w, a.logger, shared.ErrStateMismatch)
		return
	}

	id, current := a.sessions.FromRequest(r)
	result, err := a.linker.Link(r.Context(), platform, q.Get("code"), current)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	id = a.sessions.Save(id, result.Session)
	a.sessions.SetCookie(w, id)
	writeJSON(w, http.StatusOK, result.Session)
}

// Logout forgets the session.
func (a *App) Logout(w http.ResponseWriter, r *http.Request) {
	if id, _ := a.sessions.FromRequest(r); id != "" {
		a.sessions.Delete(id)
	}
	a.sessions.ClearCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

type meResponse struct {
	User    userView        `json:"user"`
	Session *models.Session `json:"session"`
}

// Me returns the signed-in user and session.
func (a *App) Me(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())
	user, err := a.store.Users.Get(r.Context(), cs.session.UserID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: newUserView(user), Session: cs.session})
}

// SwitchPlatform makes another linked platform the active one.
func (a *App) SwitchPlatform(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())
	p, ok := models.ParsePlatform(chi.URLParam(r, "platform"))
	if !ok {
		writeError(w, a.logger, &shared.UnsupportedPlatformError{Platform: chi.URLParam(r, "platform")})
		return
	}
	if _, linked := cs.session.Platforms[p]; !linked {
		writeError(w, a.logger, fmt.Errorf("%w: %s is not linked", shared.ErrInvalidArgument, p))
		return
	}

	cs.session.ActivePlatform = p
	a.sessions.Save(cs.id, cs.session)
	writeJSON(w, http.StatusOK, cs.session)
}

type usernameRequest struct {
	Username string `json:"username"`
}

// SetUsername claims a public handle and clears the needs-handle flag.
func (a *App) SetUsername(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())

	var req usernameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	if err := a.store.Users.SetUsername(r.Context(), cs.session.UserID, req.Username); err != nil {
		writeError(w, a.logger, err)
		return
	}

	cs.session.NeedsHandle = false
	a.sessions.Save(cs.id, cs.session)

	user, err := a.store.Users.Get(r.Context(), cs.session.UserID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

// SearchUsers finds other users by handle or display name.
func (a *App) SearchUsers(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, a.logger, fmt.Errorf("%w: q", shared.ErrMissingArgument))
		return
	}
	users, err := a.store.Users.Search(r.Context(), q, cs.session.UserID, 20)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	views := make([]searchResultView, 0, len(users))
	for _, u := range users {
		v, err := a.searchResult(r.Context(), cs.session.UserID, u)
		if err != nil {
			writeError(w, a.logger, err)
			return
		}
		views = append(views, v)
	}
	writeJSON(w, http.StatusOK, views)
}

// searchResult decorates u with its relationship to viewerID and its linked platforms.
func (a *App) searchResult(ctx context.Context, viewerID string, u *models.User) (searchResultView, error) {
	rel, err := a.store.Friends.Relationship(ctx, viewerID, u.ID)
	if err != nil {
		return searchResultView{}, err
	}
	conns, err := a.store.Connections.ListByUser(ctx, u.ID)
	if err != nil {
		return searchResultView{}, err
	}

	v := searchResultView{
		userView:         newUserView(u),
		IsFriend:         rel.IsFriend,
		PendingFrom:      rel.PendingFrom,
		PendingTo:        rel.PendingTo,
		PendingRequestID: rel.PendingRequestID,
		Platforms:        make([]models.Platform, 0, len(conns)),
	}
	for _, c := range conns {
		v.Platforms = append(v.Platforms, c.Platform)
	}
	return v, nil
}

// Playlists syncs and returns the active connection's playlists.
func (a *App) Playlists(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())
	sp, err := cs.session.Active()
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	conn, err := a.store.Connections.Get(r.Context(), sp.ConnectionID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	if conn.UserID != cs.session.UserID {
		writeError(w, a.logger, fmt.Errorf("%w: connection belongs to another user", shared.ErrNotAuthenticated))
		return
	}

	playlists, err := a.syncer.SyncPlaylists(r.Context(), conn, nil)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newPlaylistViews(playlists))
}

// PlaylistDetail syncs and returns a playlist's tracks. refresh=false serves the stored copy.
func (a *App) PlaylistDetail(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())
	id := chi.URLParam(r, "id")

	var (
		detail *tasks.PlaylistDetail
		err    error
	)
	if r.URL.Query().Get("refresh") == "false" {
		detail, err = a.syncer.StoredPlaylistDetail(r.Context(), cs.session.UserID, id)
	} else {
		detail, err = a.syncer.SyncPlaylistDetail(r.Context(), cs.session.UserID, id, nil)
	}
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newDetailView(detail))
}

// Friends lists accepted friends.
func (a *App) Friends(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())
	friends, err := a.store.Friends.ListFriends(r.Context(), cs.session.UserID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newUserViews(friends))
}

// PendingRequests lists requests waiting on the signed-in user.
func (a *App) PendingRequests(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())
	pending, err := a.store.Friends.ListPending(r.Context(), cs.session.UserID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newFriendViews(pending))
}

// SentRequests lists requests the signed-in user is still waiting on.
func (a *App) SentRequests(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())
	sent, err := a.store.Friends.ListSent(r.Context(), cs.session.UserID)
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newFriendViews(sent))
}

// RequestFriend sends a request to the user with the given handle.
func (a *App) RequestFriend(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())

	var req usernameRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, a.logger, err)
		return
	}
	receiver, err := a.store.Users.GetByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		writeError(w, a.logger, err)
		return
	}

	var f *models.Friend
	err = a.store.WithTx(r.Context(), func(tx *repositories.Store) error {
		f, err = tx.Friends.Request(r.Context(), cs.session.UserID, receiver.ID)
		return err
	})
	if err != nil {
		writeError(w, a.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newFriendView(f))
}

// RespondFriend accepts, rejects or cancels a pending request.
func (a *App) RespondFriend(w http.ResponseWriter, r *http.Request) {
	cs := sessionFrom(r.Context())
	id := chi.URLParam(r, "id")

	switch action := chi.URLParam(r, "action"); action {
	case "accept", "reject":
		f, err := a.store.Friends.Respond(r.Context(), id, cs.session.UserID, action == "accept")
		if err != nil {
			writeError(w, a.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, newFriendView(f))
	case "cancel":
		if err := a.store.Friends.Cancel(r.Context(), id, cs.session.UserID); err != nil {
			writeError(w, a.logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, a.logger, fmt.Errorf("%w: unknown action %q", shared.ErrInvalidArgument, action))
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

type userView struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name"`
}

func newUserView(u *models.User) userView {
	return userView{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}

func newUserViews(users []*models.User) []userView {
	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u))
	}
	return views
}

type friendView struct {
	ID          string              `json:"id"`
	RequesterID string              `json:"requester_id"`
	ReceiverID  string              `json:"receiver_id"`
	Status      models.FriendStatus `json:"status"`
}

func newFriendView(f *models.Friend) friendView {
	return friendView{ID: f.ID, RequesterID: f.RequesterID, ReceiverID: f.ReceiverID, Status: f.Status}
}

func newFriendViews(edges []*models.Friend) []friendView {
	views := make([]friendView, 0, len(edges))
	for _, f := range edges {
		views = append(views, newFriendView(f))
	}
	return views
}

type searchResultView struct {
	userView
	IsFriend         bool              `json:"is_friend"`
	PendingFrom      bool              `json:"pending_from"`
	PendingTo        bool              `json:"pending_to"`
	PendingRequestID string            `json:"pending_request_id,omitempty"`
	Platforms        []models.Platform `json:"platforms"`
}

type playlistView struct {
	ID             string          `json:"id"`
	ExternalID     string          `json:"external_id"`
	Name           string          `json:"name"`
	SnapshotID     string          `json:"snapshot_id,omitempty"`
	IsPublic       bool            `json:"is_public"`
	Platform       models.Platform `json:"platform"`
	TracksSyncedAt *time.Time      `json:"tracks_synced_at,omitempty"`
}

func newPlaylistView(p *models.Playlist) playlistView {
	return playlistView{
		ID:             p.ID,
		ExternalID:     p.ExternalID,
		Name:           p.Name,
		SnapshotID:     p.SnapshotID,
		IsPublic:       p.IsPublic,
		Platform:       p.Platform,
		TracksSyncedAt: p.TracksSyncedAt,
	}
}

func newPlaylistViews(playlists []*models.Playlist) []playlistView {
	views := make([]playlistView, 0, len(playlists))
	for _, p := range playlists {
		views = append(views, newPlaylistView(p))
	}
	return views
}

type trackView struct {
	Position    int    `json:"position"`
	TrackID     string `json:"track_id"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	Duration    string `json:"duration"`
	ExternalURL string `json:"external_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

type detailView struct {
	Playlist playlistView `json:"playlist"`
	Tracks   []trackView  `json:"tracks"`
}

func newDetailView(d *tasks.PlaylistDetail) detailView {
	tracks := make([]trackView, 0, len(d.Items))
	for _, item := range d.Items {
		tv := trackView{Position: item.Position, TrackID: item.TrackID}
		if t := item.Track; t != nil {
			tv.Title, tv.Artist, tv.Album = t.Title, t.Artist, t.Album
			tv.Duration, tv.ExternalURL, tv.ImageURL = t.DurationDisplay, t.ExternalURL, t.ImageURL
		}
		tracks = append(tracks, tv)
	}
	return detailView{Playlist: newPlaylistView(d.Playlist), Tracks: tracks}
}
