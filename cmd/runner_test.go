package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/repositories"
	"github.com/desertthunder/tunelink/internal/services"
	"github.com/desertthunder/tunelink/internal/shared"
	tu "github.com/desertthunder/tunelink/internal/testing"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

type fakeResolver map[models.Platform]*tu.FakePlatform

func (r fakeResolver) lookup(name string) (*tu.FakePlatform, error) {
	p, _ := models.ParsePlatform(name)
	f, ok := r[p]
	if !ok {
		return nil, &shared.UnsupportedPlatformError{Platform: name}
	}
	return f, nil
}

func (r fakeResolver) ResolveAuth(name string) (services.AuthService, error) {
	f, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r fakeResolver) ResolveSync(conn *models.Connection) (services.PlaylistSyncService, error) {
	f, err := r.lookup(string(conn.Platform))
	if err != nil {
		return nil, err
	}
	return f, nil
}

type harness struct {
	runner *Runner
	store  *repositories.Store
	output *bytes.Buffer
	fake   *tu.FakePlatform
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := repositories.NewStore(setupTestDB(t))
	fake := tu.NewFakePlatform(models.Spotify, "sp-1", "Listener")
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{
		Logger:   log.New(io.Discard),
		Output:   output,
		Store:    store,
		Resolver: fakeResolver{models.Spotify: fake},
	})
	return &harness{runner: runner, store: store, output: output, fake: fake}
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	app := &cli.Command{Name: "tunelink", Commands: h.runner.register()}
	return app.Run(context.Background(), append([]string{"tunelink"}, args...))
}

func (h *harness) seed(t *testing.T) (*models.User, *models.Connection) {
	t.Helper()
	ctx := context.Background()

	user := &models.User{DisplayName: "Listener"}
	if err := h.store.Users.Create(ctx, user); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	exp := time.Now().Add(time.Hour)
	token := &models.Token{AccessToken: "stored-access", RefreshToken: "stored-refresh", ExpiresAt: &exp}
	if err := h.store.Tokens.Create(ctx, token); err != nil {
		t.Fatalf("failed to create token: %v", err)
	}
	conn := &models.Connection{UserID: user.ID, Platform: models.Spotify, PlatformUserID: "sp-1", TokenID: token.ID}
	if err := h.store.Connections.Create(ctx, conn); err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	return user, conn
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			resolver := fakeResolver{}

			runner := NewRunner(RunnerOpts{Config: config, Logger: logger, Output: output, Resolver: resolver})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if got, err := runner.Resolver(); err != nil || got == nil {
				t.Errorf("expected injected resolver, got %v, %v", got, err)
			}
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			if runner.config == nil {
				t.Error("expected default config to be set")
			}
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})
	})

	t.Run("Store opens and migrates the configured database", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Database.Path = filepath.Join(t.TempDir(), "tunelink.db")
		runner := NewRunner(RunnerOpts{Config: config, Logger: log.New(io.Discard)})

		store, err := runner.Store()
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		again, _ := runner.Store()
		if store != again {
			t.Error("expected the store to be opened once")
		}
		if _, err := store.Users.Get(context.Background(), "missing"); !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected migrated schema, got %v", err)
		}
		if err := runner.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	t.Run("Registry without platforms", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{Config: &shared.Config{}})
		if _, err := runner.Registry(); !errors.Is(err, shared.ErrMissingConfig) {
			t.Errorf("expected ErrMissingConfig, got %v", err)
		}
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if expected := `{"key":"value"}` + "\n"; output.String() != expected {
				t.Errorf("expected %q, got %q", expected, output.String())
			}
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			if err == nil || !strings.Contains(err.Error(), "failed to marshal JSON") {
				t.Errorf("expected marshal error, got %v", err)
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		t.Run("writes plain text successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writePlain("hello %s", "world"); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "hello world" {
				t.Errorf("expected 'hello world', got %q", output.String())
			}
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writePlain("test")
			if err == nil || !strings.Contains(err.Error(), "failed to write output") {
				t.Errorf("expected write error, got %v", err)
			}
		})
	})

	t.Run("register", func(t *testing.T) {
		runner := NewRunner(RunnerOpts{})
		names := map[string]bool{}
		for _, cmd := range runner.register() {
			names[cmd.Name] = true
		}

		for _, want := range []string{"setup", "platforms", "login", "username", "connections", "sync", "export", "browse", "serve"} {
			if !names[want] {
				t.Errorf("expected %q command to be registered", want)
			}
		}
	})
}

func TestSetupCommands(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	h := newHarness(t)

	t.Run("config", func(t *testing.T) {
		if err := h.run(t, "setup", "config", "--config", configPath); err != nil {
			t.Fatalf("setup config: %v", err)
		}
		tu.AssertFileExists(t, configPath)

		if err := h.run(t, "setup", "config", "--config", configPath); err == nil {
			t.Error("expected second setup config to fail")
		}
	})

	t.Run("database and rollback", func(t *testing.T) {
		contents := tu.MustReadFile(t, configPath)
		dbPath := filepath.Join(dir, "app.db")
		contents = strings.Replace(contents, `path = "./tunelink.db"`, `path = "`+dbPath+`"`, 1)
		if err := os.WriteFile(configPath, []byte(contents), 0600); err != nil {
			t.Fatalf("failed to rewrite config: %v", err)
		}

		if err := h.run(t, "setup", "database", "--config", configPath); err != nil {
			t.Fatalf("setup database: %v", err)
		}
		tu.AssertFileExists(t, dbPath)
		if !strings.Contains(h.output.String(), "Database ready") {
			t.Errorf("unexpected output %q", h.output.String())
		}

		if err := h.run(t, "setup", "rollback", "--config", configPath); err != nil {
			t.Fatalf("setup rollback: %v", err)
		}
	})
}

func TestPlatformsCommand(t *testing.T) {
	output := &bytes.Buffer{}
	runner := NewRunner(RunnerOpts{Output: output, Logger: log.New(io.Discard)})
	app := &cli.Command{Name: "tunelink", Commands: runner.register()}

	if err := app.Run(context.Background(), []string{"tunelink", "platforms"}); err != nil {
		t.Fatalf("platforms: %v", err)
	}
	for _, want := range []string{"Spotify", "YouTube", "/callback/spotify"} {
		if !strings.Contains(output.String(), want) {
			t.Errorf("expected %q in output %q", want, output.String())
		}
	}
}

func TestLoginRequiresPlatform(t *testing.T) {
	h := newHarness(t)
	if err := h.run(t, "login"); !errors.Is(err, shared.ErrMissingArgument) {
		t.Errorf("expected ErrMissingArgument, got %v", err)
	}
}

func TestUserCommands(t *testing.T) {
	h := newHarness(t)
	user, conn := h.seed(t)

	t.Run("username", func(t *testing.T) {
		if err := h.run(t, "username", "--user", user.ID, "listener_1"); err != nil {
			t.Fatalf("username: %v", err)
		}
		got, err := h.store.Users.Get(context.Background(), user.ID)
		if err != nil || got.Username != "listener_1" {
			t.Errorf("expected username saved, got %+v, %v", got, err)
		}

		if err := h.run(t, "username", "--user", user.ID, "!"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("connections", func(t *testing.T) {
		h.output.Reset()
		if err := h.run(t, "connections", "--user", user.ID); err != nil {
			t.Fatalf("connections: %v", err)
		}
		if !strings.Contains(h.output.String(), conn.ID) || !strings.Contains(h.output.String(), "never") {
			t.Errorf("unexpected output %q", h.output.String())
		}
	})
}

func TestSyncAndExport(t *testing.T) {
	h := newHarness(t)
	user, conn := h.seed(t)
	public := true
	h.fake.Playlists = []models.RemotePlaylist{{ExternalID: "pl-a", Name: "Road Trip", IsPublic: &public}}
	h.fake.Tracks["pl-a"] = []models.RemoteTrack{
		{PlatformTrackID: "t1", Title: "One", Artists: []string{"Band"}, DurationMS: 185000},
	}

	if err := h.run(t, "sync", "playlists", "--connection", conn.ID); err != nil {
		t.Fatalf("sync playlists: %v", err)
	}
	if !strings.Contains(h.output.String(), "Road Trip") {
		t.Errorf("expected playlist in output %q", h.output.String())
	}
	if h.fake.LastAccessToken != "stored-access" {
		t.Errorf("expected stored token to be used, got %q", h.fake.LastAccessToken)
	}

	playlists, err := h.store.Playlists.ListByConnection(context.Background(), conn.ID)
	if err != nil || len(playlists) != 1 {
		t.Fatalf("expected 1 stored playlist, got %d, %v", len(playlists), err)
	}
	id := playlists[0].ID

	t.Run("tracks", func(t *testing.T) {
		h.output.Reset()
		if err := h.run(t, "sync", "tracks", "--playlist", id); err != nil {
			t.Fatalf("sync tracks: %v", err)
		}
		if !strings.Contains(h.output.String(), "Band - One") || !strings.Contains(h.output.String(), "3:05") {
			t.Errorf("unexpected output %q", h.output.String())
		}
	})

	t.Run("tracks for a stranger", func(t *testing.T) {
		stranger := &models.User{DisplayName: "Stranger"}
		if err := h.store.Users.Create(context.Background(), stranger); err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
		err := h.run(t, "sync", "tracks", "--playlist", id, "--viewer", stranger.ID)
		if !errors.Is(err, shared.ErrForbidden) {
			t.Errorf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("export", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "exports")
		if err := h.run(t, "export", "--user", user.ID, "--format", "csv", "--output", out); err != nil {
			t.Fatalf("export: %v", err)
		}
		tu.AssertFileExists(t, filepath.Join(out, "export_manifest.json"))
		tu.AssertFileExists(t, filepath.Join(out, "spotify_pl-a.csv"))
		if !strings.Contains(tu.MustReadFile(t, filepath.Join(out, "spotify_pl-a.csv")), "One") {
			t.Error("expected track in CSV")
		}
	})

	t.Run("export rejects unknown format", func(t *testing.T) {
		err := h.run(t, "export", "--user", user.ID, "--format", "xml")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}
