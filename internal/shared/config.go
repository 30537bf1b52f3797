package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig            `toml:"database"`
	Server    ServerConfig              `toml:"server"`
	Log       LogConfig                 `toml:"log"`
	Sync      SyncConfig                `toml:"sync"`
	Platforms map[string]PlatformConfig `toml:"platforms"`
}

// PlatformConfig is one registry entry: the OAuth client and the endpoints for a music platform.
//
// Empty endpoint fields fall back to the platform's well-known defaults.
type PlatformConfig struct {
	ClientID     string            `toml:"client_id"`
	ClientSecret string            `toml:"client_secret"`
	RedirectURI  string            `toml:"redirect_uri"`
	AuthURL      string            `toml:"auth_url"`
	TokenURL     string            `toml:"token_url"`
	UserInfoURL  string            `toml:"user_info_url"`
	APIURL       string            `toml:"api_url"`
	Scopes       []string          `toml:"scopes"`
	Params       map[string]string `toml:"params"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	CookieSecure bool   `toml:"cookie_secure"`
}

// Addr joins host and port for [net/http.Server].
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig controls the logger level.
type LogConfig struct {
	Level string `toml:"level"`
}

// SyncConfig tunes outbound platform API calls.
type SyncConfig struct {
	RequestsPerSecond float64 `toml:"requests_per_second"`
	Burst             int     `toml:"burst"`
	RetryAfterSeconds int     `toml:"retry_after_seconds"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
}

// RetryAfter is the wait used when a 429 response carries no usable Retry-After header.
func (s SyncConfig) RetryAfter() time.Duration {
	if s.RetryAfterSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(s.RetryAfterSeconds) * time.Second
}

// Timeout bounds a single outbound HTTP request.
func (s SyncConfig) Timeout() time.Duration {
	if s.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Platform looks up a registry entry case-insensitively.
func (c *Config) Platform(name string) (PlatformConfig, bool) {
	for k, v := range c.Platforms {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return PlatformConfig{}, false
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	config.ApplyEnv(os.LookupEnv)
	return &config, nil
}

// ApplyEnv overrides platform credentials from TUNELINK_<PLATFORM>_CLIENT_ID and
// TUNELINK_<PLATFORM>_CLIENT_SECRET. Platforms absent from the config are not created.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	for name, pc := range c.Platforms {
		prefix := "TUNELINK_" + strings.ToUpper(name) + "_"
		if v, ok := lookup(prefix + "CLIENT_ID"); ok && v != "" {
			pc.ClientID = v
		}
		if v, ok := lookup(prefix + "CLIENT_SECRET"); ok && v != "" {
			pc.ClientSecret = v
		}
		c.Platforms[name] = pc
	}
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
