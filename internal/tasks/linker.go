package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/repositories"
	"github.com/desertthunder/tunelink/internal/services"
	"github.com/desertthunder/tunelink/internal/shared"
)

// anonymousName is stamped on users whose platform account has no display name.
const anonymousName = "Anonymous"

// LinkState is a step of the OAuth callback.
type LinkState int

const (
	AwaitingCode LinkState = iota
	CodeReceived
	TokenExchanged
	IdentityFetched
	ConnectionResolved
	SessionEstablished
)

func (s LinkState) String() string {
	switch s {
	case AwaitingCode:
		return "awaiting_code"
	case CodeReceived:
		return "code_received"
	case TokenExchanged:
		return "token_exchanged"
	case IdentityFetched:
		return "identity_fetched"
	case ConnectionResolved:
		return "connection_resolved"
	case SessionEstablished:
		return "session_established"
	default:
		return ""
	}
}

// LinkError reports the last state reached before a callback failed.
type LinkError struct {
	State LinkState
	Err   error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("link failed after %s: %v", e.State, e.Err)
}

func (e *LinkError) Unwrap() error { return e.Err }

// Resolver hands out platform services. [services.Factory] implements it.
type Resolver interface {
	ResolveAuth(name string) (services.AuthService, error)
	ResolveSync(conn *models.Connection) (services.PlaylistSyncService, error)
}

// LinkResult is what a completed callback produced.
type LinkResult struct {
	User       *models.User
	Connection *models.Connection
	Token      *models.Token
	Session    *models.Session
	// Created is true when the connection did not exist before this callback.
	Created bool
}

// AccountLinker runs the OAuth callback from code to session.
type AccountLinker struct {
	resolver Resolver
	store    *repositories.Store
	now      func() time.Time
	logger   *log.Logger
}

// NewAccountLinker creates a linker. A nil logger writes to stderr.
func NewAccountLinker(resolver Resolver, store *repositories.Store, logger *log.Logger) *AccountLinker {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &AccountLinker{resolver: resolver, store: store, now: time.Now, logger: logger}
}

// Link exchanges code on platform, resolves the local account and returns an updated copy of
// session with the platform attached and active. session may be nil.
//
// A connection that already exists keeps its user and gets its token updated in place. An unknown
// platform account is attached to the session's user when there is one, otherwise to a new user.
func (l *AccountLinker) Link(ctx context.Context, platform, code string, session *models.Session) (*LinkResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, &LinkError{State: AwaitingCode, Err: &shared.TokenRefreshError{Platform: platform, Reason: "missing code"}}
	}

	auth, err := l.resolver.ResolveAuth(platform)
	if err != nil {
		return nil, &LinkError{State: CodeReceived, Err: err}
	}
	p := auth.Platform()
	logger := shared.WithLogger(l.logger, "platform", p)

	oauthTok, err := auth.Exchange(ctx, code)
	if err != nil {
		return nil, &LinkError{State: CodeReceived, Err: err}
	}
	logger.Debug("exchanged authorization code")

	identity, err := auth.Identity(ctx, oauthTok.AccessToken)
	if err != nil {
		return nil, &LinkError{State: TokenExchanged, Err: err}
	}

	fresh := services.TokenFromOAuth2(oauthTok, l.now())
	result := &LinkResult{}

	err = l.store.WithTx(ctx, func(tx *repositories.Store) error {
		conn, err := tx.Connections.GetByPlatformUser(ctx, p, identity.ID)
		switch {
		case err == nil:
			return l.relink(ctx, tx, conn, fresh, result)
		case errors.Is(err, shared.ErrNotFound):
			return l.create(ctx, tx, p, identity, fresh, session, result)
		default:
			return err
		}
	})
	if err != nil {
		return nil, &LinkError{State: IdentityFetched, Err: err}
	}

	result.Session = establish(session, result.User, result.Connection)
	logger.Info("linked account",
		"user", result.User.ID, "platform_user", identity.ID, "created", result.Created)
	return result, nil
}

// relink updates the stored token of an existing connection. The display name stays as stamped at creation.
func (l *AccountLinker) relink(ctx context.Context, tx *repositories.Store, conn *models.Connection, fresh *models.Token, result *LinkResult) error {
	token, err := tx.Tokens.Get(ctx, conn.TokenID)
	if err != nil {
		return err
	}
	token.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		token.RefreshToken = fresh.RefreshToken
	}
	token.ExpiresAt = fresh.ExpiresAt
	for k, v := range fresh.Extra {
		if token.Extra == nil {
			token.Extra = make(map[string]any)
		}
		token.Extra[k] = v
	}
	if err := tx.Tokens.Update(ctx, token); err != nil {
		return err
	}

	user, err := tx.Users.Get(ctx, conn.UserID)
	if err != nil {
		return err
	}

	result.User, result.Connection, result.Token = user, conn, token
	return nil
}

func (l *AccountLinker) create(
	ctx context.Context,
	tx *repositories.Store,
	p models.Platform,
	identity *models.RemoteIdentity,
	fresh *models.Token,
	session *models.Session,
	result *LinkResult,
) error {
	var user *models.User
	if session != nil && session.UserID != "" {
		existing, err := tx.Users.Get(ctx, session.UserID)
		switch {
		case err == nil:
			user = existing
		case !errors.Is(err, shared.ErrNotFound):
			return err
		}
	}

	if user == nil {
		name := strings.TrimSpace(identity.DisplayName)
		if name == "" {
			name = anonymousName
		}
		user = &models.User{DisplayName: name}
		if err := tx.Users.Create(ctx, user); err != nil {
			return err
		}
	}

	if err := tx.Tokens.Create(ctx, fresh); err != nil {
		return err
	}

	conn := &models.Connection{
		UserID:         user.ID,
		Platform:       p,
		PlatformUserID: identity.ID,
		TokenID:        fresh.ID,
	}
	if err := tx.Connections.Create(ctx, conn); err != nil {
		return err
	}

	result.User, result.Connection, result.Token, result.Created = user, conn, fresh, true
	return nil
}

// establish returns a copy of session with conn attached and active. A session that belongs to
// another user is replaced.
func establish(session *models.Session, user *models.User, conn *models.Connection) *models.Session {
	next := session.Clone()
	if next.UserID != user.ID {
		next = (*models.Session)(nil).Clone()
		next.UserID = user.ID
	}
	next.Platforms[conn.Platform] = models.SessionPlatform{
		PlatformUserID: conn.PlatformUserID,
		ConnectionID:   conn.ID,
	}
	next.ActivePlatform = conn.Platform
	next.NeedsHandle = !user.HasUsername()
	return next
}
