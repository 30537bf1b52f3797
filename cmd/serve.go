package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunelink/internal/server"
)

// Serve runs the web service until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	resolver, err := r.Resolver()
	if err != nil {
		return err
	}
	store, err := r.Store()
	if err != nil {
		return err
	}

	addr := r.config.Server.Addr()
	if a := cmd.String("addr"); a != "" {
		addr = a
	}

	sessions := server.NewSessionStore(r.config.Server.CookieSecure)
	app := server.NewApp(resolver, store, sessions, r.logger)
	srv := server.New(addr, server.NewRouter(r.logger, app), r.logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}
