package services

import (
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/tunelink/internal/models"
	"github.com/desertthunder/tunelink/internal/shared"
)

const defaultTimeout = 30 * time.Second

// Options configures the services built by a [Factory].
type Options struct {
	// Store persists refreshed tokens. Refresh still works without one but nothing is saved.
	Store      TokenStore
	HTTPClient *http.Client
	Logger     *log.Logger

	// RequestsPerSecond <= 0 disables client-side rate limiting.
	RequestsPerSecond float64
	Burst             int
	// RetryAfter is the 429 backoff used when the response carries no Retry-After header.
	RetryAfter time.Duration
	// Timeout applies to the default HTTP client only.
	Timeout time.Duration

	Clock func() time.Time
	Sleep sleepFunc
}

// OptionsFromConfig maps the [sync] config table onto [Options].
func OptionsFromConfig(cfg shared.SyncConfig, store TokenStore, logger *log.Logger) Options {
	return Options{
		Store:             store,
		Logger:            logger,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		RetryAfter:        cfg.RetryAfter(),
		Timeout:           cfg.Timeout(),
	}
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func (o Options) clock() func() time.Time {
	if o.Clock != nil {
		return o.Clock
	}
	return time.Now
}

func (o Options) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return shared.NewLogger(nil)
}

func (o Options) limiter() *rate.Limiter {
	if o.RequestsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := o.Burst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.RequestsPerSecond), burst)
}

// platformService is what each platform implementation provides.
type platformService interface {
	AuthService
	PlaylistSyncService
}

// Factory resolves platform names to services. Services are built lazily and shared, so each
// platform keeps one rate limiter and one refresh group.
type Factory struct {
	registry *Registry
	opts     Options

	mu       sync.Mutex
	services map[models.Platform]platformService
}

// NewFactory creates a factory over the configured registry.
func NewFactory(reg *Registry, opts Options) *Factory {
	return &Factory{
		registry: reg,
		opts:     opts,
		services: make(map[models.Platform]platformService),
	}
}

// Platforms lists the platforms the factory can serve.
func (f *Factory) Platforms() []models.Platform { return f.registry.Platforms() }

// Registry exposes the underlying registry.
func (f *Factory) Registry() *Registry { return f.registry }

// ResolveAuth returns the [AuthService] for a platform name. Unknown or unconfigured platforms
// fail with [shared.UnsupportedPlatformError].
func (f *Factory) ResolveAuth(name string) (AuthService, error) {
	return f.resolve(name)
}

// ResolveSync returns the [PlaylistSyncService] for the platform of a connection.
func (f *Factory) ResolveSync(conn *models.Connection) (PlaylistSyncService, error) {
	if conn == nil {
		return nil, &shared.UnsupportedPlatformError{}
	}
	return f.resolve(string(conn.Platform))
}

func (f *Factory) resolve(name string) (platformService, error) {
	e, err := f.registry.Lookup(name)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if svc, ok := f.services[e.Platform]; ok {
		return svc, nil
	}

	var svc platformService
	switch e.Platform {
	case models.Spotify:
		svc = NewSpotifyService(e, f.opts)
	case models.YouTube:
		svc = NewYouTubeService(e, f.opts)
	default:
		return nil, &shared.UnsupportedPlatformError{Platform: name}
	}
	f.services[e.Platform] = svc
	return svc, nil
}
