package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/desertthunder/tunelink/internal/models"
)

const (
	sessionCookieName = "session_id"
	stateCookiePrefix = "oauth_state_"
	sessionTTL        = 24 * time.Hour
)

type sessionEntry struct {
	session   *models.Session
	createdAt time.Time
}

// SessionStore keeps login sessions in memory, keyed by a random cookie value.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]sessionEntry
	secure   bool
	now      func() time.Time
}

// NewSessionStore creates an empty store. secure marks cookies Secure for HTTPS deployments.
func NewSessionStore(secure bool) *SessionStore {
	return &SessionStore{sessions: make(map[string]sessionEntry), secure: secure, now: time.Now}
}

// Get returns a copy of the session stored under id, or nil when missing or expired.
func (s *SessionStore) Get(id string) *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok || s.now().Sub(e.createdAt) > sessionTTL {
		return nil
	}
	return e.session.Clone()
}

// Save stores session under id, creating a new id when id is empty, and returns the id.
func (s *SessionStore) Save(id string, session *models.Session) string {
	if id == "" {
		id = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	created := s.now()
	if e, ok := s.sessions[id]; ok {
		created = e.createdAt
	}
	s.sessions[id] = sessionEntry{session: session.Clone(), createdAt: created}
	return id
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// FromRequest resolves the session cookie. The id is returned even when the session is gone.
func (s *SessionStore) FromRequest(r *http.Request) (string, *models.Session) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return "", nil
	}
	return c.Value, s.Get(c.Value)
}

// SetCookie writes the session cookie.
func (s *SessionStore) SetCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionTTL.Seconds()),
	})
}

// ClearCookie expires the session cookie.
func (s *SessionStore) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: "", Path: "/", HttpOnly: true, MaxAge: -1})
}

func (s *SessionStore) setState(w http.ResponseWriter, platform models.Platform, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookiePrefix + string(platform),
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   300,
	})
}

// takeState reads and clears the state cookie for platform.
func (s *SessionStore) takeState(w http.ResponseWriter, r *http.Request, platform models.Platform) string {
	name := stateCookiePrefix + string(platform)
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", HttpOnly: true, MaxAge: -1})
	return c.Value
}
