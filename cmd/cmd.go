// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "json", Usage: "Output raw JSON"},
		&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON output", Value: true},
	}
}

// setupCommand handles configuration and database setup.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write an example config.toml",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupRollback,
			},
		},
	}
}

// platformsCommand lists configured platforms.
func platformsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "platforms",
		Usage:  "List configured music platforms",
		Action: r.Platforms,
	}
}

// loginCommand links a platform account.
func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "login",
		Usage:     "Link a platform account through the browser",
		ArgsUsage: "<platform>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "Attach the account to this existing user ID"},
		},
		Action: r.Login,
	}
}

// usernameCommand claims a public handle.
func usernameCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "username",
		Usage:     "Set a user's public username",
		ArgsUsage: "<handle>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "User ID", Required: true},
		},
		Action: r.Username,
	}
}

// connectionsCommand lists a user's linked accounts.
func connectionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "connections",
		Usage: "List a user's linked platform accounts",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "User ID", Required: true},
		}, jsonFlags()...),
		Action: r.Connections,
	}
}

// syncCommand mirrors remote playlists and tracks.
func syncCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Mirror playlists and tracks from a platform",
		Commands: []*cli.Command{
			{
				Name:  "playlists",
				Usage: "Sync a connection's playlists",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "connection", Usage: "Connection ID", Required: true},
				}, jsonFlags()...),
				Action: r.SyncPlaylists,
			},
			{
				Name:  "tracks",
				Usage: "Sync a playlist's tracks",
				Flags: append([]cli.Flag{
					&cli.StringFlag{Name: "playlist", Usage: "Playlist ID", Required: true},
					&cli.StringFlag{Name: "viewer", Usage: "Viewing user ID (default: the owner)"},
				}, jsonFlags()...),
				Action: r.SyncTracks,
			},
		},
	}
}

// exportCommand writes playlists to files.
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Export playlists to CSV, Markdown or text files",
		ArgsUsage: "[playlist IDs...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Usage: "Viewing user ID", Required: true},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "csv, markdown or text", Value: "csv"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Output directory"},
			&cli.IntFlag{Name: "workers", Usage: "Concurrent exports (max 10)", Value: 4},
			&cli.BoolFlag{Name: "refresh", Usage: "Re-sync tracks before writing"},
		},
		Action: r.Export,
	}
}

// browseCommand returns the TUI command for interactive playlist browsing.
func browseCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "browse",
		Aliases: []string{"tui", "ui"},
		Usage:   "Launch interactive TUI for a connection's playlists",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "connection", Usage: "Connection ID", Required: true},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: "Export format", Value: "csv"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Export directory"},
			&cli.StringFlag{Name: "log-file", Usage: "Where logs go while the TUI runs", Value: "./tmp/tunelink-tui.log"},
		},
		Action: r.Browse,
	}
}

// serveCommand runs the web service.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the account linking web service",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default: server.host:server.port)"},
		},
		Action: r.Serve,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, platformsCommand, loginCommand, usernameCommand, connectionsCommand,
		syncCommand, exportCommand, browseCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}
