package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/server"
	"github.com/desertthunder/tunelink/internal/shared"
	"github.com/desertthunder/tunelink/internal/tasks"
)

const loginTimeout = 2 * time.Minute

// Platforms lists the configured platforms and their OAuth endpoints.
func (r *Runner) Platforms(ctx context.Context, cmd *cli.Command) error {
	reg, err := r.Registry()
	if err != nil {
		return err
	}

	r.writePlainHeader("Configured Platforms")
	for _, p := range reg.Platforms() {
		e, err := reg.Lookup(string(p))
		if err != nil {
			return err
		}
		r.writePlain("%s\n", headerStyle.Render(p.Title()))
		r.writePlain("  authorize: %s\n", e.AuthURL)
		r.writePlain("  callback:  %s\n", e.RedirectURI)
		if len(e.Scopes) > 0 {
			r.writePlain("  scopes:    %s\n", mutedStyle.Render(strings.Join(e.Scopes, " ")))
		}
	}
	return nil
}

// Login links a platform account through a loopback OAuth callback.
//
// A one-shot callback server listens on the configured redirect URI, the browser is sent to the
// authorize URL and the captured code goes through the account linker. --user attaches the
// account to an existing user.
func (r *Runner) Login(ctx context.Context, cmd *cli.Command) error {
	platform := cmd.Args().First()
	if platform == "" {
		return fmt.Errorf("%w: platform", shared.ErrMissingArgument)
	}

	reg, err := r.Registry()
	if err != nil {
		return err
	}
	e, err := reg.Lookup(platform)
	if err != nil {
		return err
	}
	redirect, err := url.Parse(e.RedirectURI)
	if err != nil {
		return fmt.Errorf("%w: redirect_uri: %v", shared.ErrInvalidConfig, err)
	}

	resolver, err := r.Resolver()
	if err != nil {
		return err
	}
	auth, err := resolver.ResolveAuth(platform)
	if err != nil {
		return err
	}
	store, err := r.Store()
	if err != nil {
		return err
	}

	var session *models.Session
	if userID := cmd.String("user"); userID != "" {
		if _, err := store.Users.Get(ctx, userID); err != nil {
			return err
		}
		session = &models.Session{UserID: userID}
	}

	state, err := shared.GenerateState()
	if err != nil {
		return err
	}

	callbackPath := redirect.Path
	if callbackPath == "" {
		callbackPath = "/"
	}
	handler := server.NewOAuthHandler(callbackPath, state)
	srv := server.New(redirect.Host, server.NewRouter(r.logger, handler), r.logger)

	srvCtx, stop := context.WithCancel(ctx)
	defer stop()
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Run(srvCtx) }()

	authURL := auth.AuthCodeURL(state)
	r.writePlain("→ Opening browser for %s authorization...\n", auth.Platform().Title())
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warn("failed to open browser automatically", "error", err)
		r.writePlainln("⚠ Could not open browser automatically.")
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}
	r.writePlain("→ Waiting for authorization (%s timeout)...\n", loginTimeout)

	waitCtx, cancel := context.WithTimeout(ctx, loginTimeout)
	defer cancel()

	var result server.OAuthResult
	select {
	case result = <-handler.Result():
	case err := <-srvErr:
		if err == nil {
			err = errors.New("callback server stopped")
		}
		return fmt.Errorf("callback server: %w", err)
	case <-waitCtx.Done():
		return fmt.Errorf("%w: authorization not completed: %v", shared.ErrAuthFailed, waitCtx.Err())
	}
	stop()
	<-srvErr

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}

	linked, err := tasks.NewAccountLinker(resolver, store, r.logger).Link(ctx, platform, result.Code, session)
	if err != nil {
		return err
	}

	verb := "Linked"
	if !linked.Created {
		verb = "Relinked"
	}
	r.writePlain("%s %s %s account %s\n", okStyle.Render("✓"), verb, auth.Platform().Title(), linked.Connection.PlatformUserID)
	r.writePlain("User:       %s (%s)\n", linked.User.ID, linked.User.DisplayName)
	r.writePlain("Connection: %s\n", linked.Connection.ID)
	if linked.Session.NeedsHandle {
		r.writePlain("%s\n", mutedStyle.Render("Pick a public username with: tunelink username --user "+linked.User.ID+" <handle>"))
	}
	return nil
}

// Username claims a public handle for a user.
func (r *Runner) Username(ctx context.Context, cmd *cli.Command) error {
	handle := cmd.Args().First()
	if handle == "" {
		return fmt.Errorf("%w: username", shared.ErrMissingArgument)
	}
	store, err := r.Store()
	if err != nil {
		return err
	}
	if err := store.Users.SetUsername(ctx, cmd.String("user"), handle); err != nil {
		return err
	}
	r.writePlain("%s Username set to %s\n", okStyle.Render("✓"), handle)
	return nil
}

// Connections lists a user's linked platform accounts.
func (r *Runner) Connections(ctx context.Context, cmd *cli.Command) error {
	store, err := r.Store()
	if err != nil {
		return err
	}
	conns, err := store.Connections.ListByUser(ctx, cmd.String("user"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(conns, true)
	}

	if len(conns) == 0 {
		return r.writePlain("No linked accounts\n")
	}
	r.writePlainHeader("Connections")
	for _, c := range conns {
		synced := "never"
		if c.PlaylistsSyncedAt != nil {
			synced = c.PlaylistsSyncedAt.Local().Format(time.DateTime)
		}
		r.writePlain("%s  %-8s %s  %s\n", c.ID, c.Platform, c.PlatformUserID, mutedStyle.Render("synced "+synced))
	}
	return nil
}
