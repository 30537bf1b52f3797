package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunelink/internal/shared"
)

// SetupConfig writes the example configuration to --config.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")
	if err := shared.CreateConfigFile(configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", configPath)
	r.writePlain("%s Config written to %s\n", okStyle.Render("✓"), configPath)
	r.writePlain("Fill in client_id and client_secret for each platform, or set TUNELINK_<PLATFORM>_CLIENT_ID/SECRET.\n")
	return nil
}

// loadSetupConfig loads --config, creating it from the template when missing.
func (r *Runner) loadSetupConfig(configPath string) *shared.Config {
	if _, err := os.Stat(configPath); err == nil {
		config, err := shared.LoadConfig(configPath)
		if err != nil {
			r.logger.Warn("failed to load config, using defaults", "error", err)
			return shared.DefaultConfig()
		}
		return config
	}

	r.logger.Info("config file not found, creating from template", "path", configPath)
	if err := shared.CreateConfigFile(configPath); err != nil {
		r.logger.Warn("failed to create config file, using defaults", "error", err)
		return shared.DefaultConfig()
	}
	config, err := shared.LoadConfig(configPath)
	if err != nil {
		r.logger.Warn("failed to load created config, using defaults", "error", err)
		return shared.DefaultConfig()
	}
	return config
}

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.loadSetupConfig(cmd.String("config"))

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	applied, err := shared.Migrate(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	r.writePlain("%s Database ready at %s (%d migrations applied)\n", okStyle.Render("✓"), config.Database.Path, applied)
	return nil
}

// SetupRollback reverts the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	config := r.loadSetupConfig(cmd.String("config"))

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("failed to roll back migration: %w", err)
	}
	r.writePlain("%s Rolled back the latest migration\n", okStyle.Render("✓"))
	return nil
}
