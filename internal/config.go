package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/slipbox/internal/backlinks"
	"github.com/starford/slipbox/internal/finder"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Notes  NotesConfig       `yaml:"notes"`
	Search SearchConfig      `yaml:"search"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Notes.Validate(); err != nil {
		return err
	}
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// NotesConfig locates the note tree and sets the default backlink options.
type NotesConfig struct {
	Root     string `yaml:"root"`
	Nested   bool   `yaml:"nested"`
	Absolute bool   `yaml:"absolute"`
	Mode     string `yaml:"mode"`
}

// Validate validates the notes configuration.
func (c *NotesConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = string(backlinks.ModeSearch)
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.Mode, validation.In(string(backlinks.ModeSearch), string(backlinks.ModeGraph))),
	)
}

// Options returns the backlink options these settings describe.
func (c *NotesConfig) Options() backlinks.Options {
	return backlinks.Options{
		Nested:   c.Nested,
		Absolute: c.Absolute,
		Mode:     backlinks.Mode(c.Mode),
	}
}

// SearchConfig selects the content-search backend behind search-based
// backlink resolution.
//
// Workers bounds concurrent per-root searches; zero means GOMAXPROCS.
type SearchConfig struct {
	Backend     string `yaml:"backend"`
	RipgrepPath string `yaml:"ripgrep_path"`
	Workers     int    `yaml:"workers"`
}

// Validate validates the search configuration.
func (c *SearchConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = finder.BackendNative
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.In(finder.BackendNative, finder.BackendRipgrep)),
		validation.Field(&c.Workers, validation.Min(0)),
	)
}

// SQLiteConfig holds the location of the full-text search index.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a Config rooted at the user's home directory
// with the index in the user cache directory.
func NewDefaultConfig() *Config {
	root, err := os.UserHomeDir()
	if err != nil {
		root = "."
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		cache = filepath.Join(root, ".cache")
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Notes: NotesConfig{
			Root: root,
			Mode: string(backlinks.ModeSearch),
		},
		Search: SearchConfig{
			Backend: finder.BackendNative,
		},
		SQLite: SQLiteConfig{
			Path: filepath.Join(cache, "slipbox", "index.db"),
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
