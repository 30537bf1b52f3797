package main

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/goccy/go-json"

	"github.com/desertthunder/tunelink/internal/repositories"
	"github.com/desertthunder/tunelink/internal/services"
	"github.com/desertthunder/tunelink/internal/shared"
	"github.com/desertthunder/tunelink/internal/tasks"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1DB954"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, registry and service factory are opened on first use so commands that need
// none of them (setup config, help) work without a valid config.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer

	mu       sync.Mutex
	db       *sql.DB
	store    *repositories.Store
	registry *services.Registry
	resolver tasks.Resolver
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config   *shared.Config
	Logger   *log.Logger
	Output   io.Writer
	Store    *repositories.Store
	Resolver tasks.Resolver
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:   opts.Config,
		logger:   opts.Logger,
		output:   opts.Output,
		store:    opts.Store,
		resolver: opts.Resolver,
	}
}

// Store opens the configured database and applies pending migrations.
func (r *Runner) Store() (*repositories.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		return r.store, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	r.db = db
	r.store = repositories.NewStore(db)
	return r.store, nil
}

// Registry resolves the configured platforms.
func (r *Runner) Registry() (*services.Registry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registry != nil {
		return r.registry, nil
	}
	if len(r.config.Platforms) == 0 {
		return nil, fmt.Errorf("%w: no [platforms] entries", shared.ErrMissingConfig)
	}
	reg, err := services.NewRegistry(r.config.Platforms)
	if err != nil {
		return nil, err
	}
	r.registry = reg
	return reg, nil
}

// Resolver returns the platform service factory, persisting refreshed tokens to the database.
func (r *Runner) Resolver() (tasks.Resolver, error) {
	if r.resolver != nil {
		return r.resolver, nil
	}

	store, err := r.Store()
	if err != nil {
		return nil, err
	}
	reg, err := r.Registry()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resolver == nil {
		r.resolver = services.NewFactory(reg, services.OptionsFromConfig(r.config.Sync, store.Tokens, r.logger))
	}
	return r.resolver, nil
}

// Syncer builds a [tasks.Syncer] over the store and resolver.
func (r *Runner) Syncer() (*tasks.Syncer, error) {
	resolver, err := r.Resolver()
	if err != nil {
		return nil, err
	}
	store, err := r.Store()
	if err != nil {
		return nil, err
	}
	return tasks.NewSyncer(resolver, store, r.logger), nil
}

// Close releases the database when this runner opened it.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db, r.store = nil, nil
	return err
}

// SetLogger replaces the logger, e.g. to keep log lines out of the TUI.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// watchProgress prints updates until the returned stop func is called.
// stop waits for the printer so summaries are never interleaved with progress lines.
func (r *Runner) watchProgress() (chan tasks.ProgressUpdate, func()) {
	ch := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range ch {
			r.writePlain("%s %s\n", phaseMark(update.Phase), update.Message)
		}
	}()
	return ch, func() {
		close(ch)
		<-done
	}
}

func phaseMark(p tasks.Phase) string {
	switch p {
	case tasks.RefreshToken:
		return mutedStyle.Render("🔑")
	case tasks.FetchPlaylists, tasks.FetchTracks:
		return "📥"
	case tasks.ReconcilePlaylists, tasks.ReconcileTracks:
		return "💾"
	default:
		return "→"
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", headerStyle.Render(title))
	r.writePlain("═══════════════════════════════════════\n")
}
