package main

import (
	"context"
	"errors"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunelink/internal/shared"
	"github.com/desertthunder/tunelink/internal/tasks"
)

func main() {
	logger := shared.NewLogger(nil)

	configPath := os.Getenv("TUNELINK_CONFIG")
	if configPath == "" {
		configPath = "config.toml"
	}

	config := shared.DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if loaded, err := shared.LoadConfig(configPath); err == nil {
			config = loaded
		} else {
			logger.Warn("failed to load config, using defaults", "path", configPath, "error", err)
		}
	} else {
		config.ApplyEnv(os.LookupEnv)
	}
	shared.SetLogLevel(logger, shared.ParseLogLevel(config.Log.Level))

	runner := NewRunner(RunnerOpts{Config: config, Logger: logger})
	defer runner.Close()

	app := &cli.Command{
		Name:     "tunelink",
		Usage:    "Link music platform accounts and mirror their playlists",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		runner.Close()
		var linkErr *tasks.LinkError
		if errors.As(err, &linkErr) {
			logger.Fatal("account linking failed", "state", linkErr.State, "error", linkErr.Err)
		}
		logger.Fatalf("application error: %v", err)
	}
}
