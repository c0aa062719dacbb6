package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/hippomind/internal/license"
	"github.com/starford/hippomind/internal/mindmap"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// License store drivers.
const (
	StoreDriverSQLite = "sqlite"
	StoreDriverRedis  = "redis"
)

// Config represents the application configuration.
type Config struct {
	App           ApplicationConfig   `yaml:"app"`
	Library       LibraryConfig       `yaml:"library"`
	SQLite        SQLiteConfig        `yaml:"sqlite"`
	Auth          AuthConfig          `yaml:"auth"`
	Editor        EditorConfig        `yaml:"editor"`
	License       LicenseConfig       `yaml:"license"`
	LicenseServer LicenseServerConfig `yaml:"license_server"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Library.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Editor.Validate(); err != nil {
		return err
	}
	if err := c.License.Validate(); err != nil {
		return err
	}
	return c.LicenseServer.Validate()
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

// LibraryConfig holds the directory of .mindmap documents.
type LibraryConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the library configuration.
func (c *LibraryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
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

// EditorConfig holds editing defaults shared by every tab.
type EditorConfig struct {
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	// HistoryMaxDepth bounds each tab's undo stack. Zero is unbounded.
	HistoryMaxDepth int    `yaml:"history_max_depth"`
	Locale          string `yaml:"locale"`
	Theme           string `yaml:"theme"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	locales := make([]any, len(mindmap.SupportedLocales))
	for i, l := range mindmap.SupportedLocales {
		locales[i] = l
	}
	themes := make([]any, 0, len(mindmap.Themes))
	for name := range mindmap.Themes {
		themes = append(themes, string(name))
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.AutosaveInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.HistoryMaxDepth, validation.Min(0)),
		validation.Field(&c.Locale, validation.Required, validation.In(locales...)),
		validation.Field(&c.Theme, validation.Required, validation.In(themes...)),
	)
}

// LicenseConfig controls the license check of the editor.
type LicenseConfig struct {
	// Required refuses to serve until a license is activated.
	Required  bool   `yaml:"required"`
	Endpoint  string `yaml:"endpoint"`
	CachePath string `yaml:"cache_path"`
}

// Validate validates the license configuration.
func (c *LicenseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.CachePath, validation.Required),
	)
}

// LicenseServerConfig configures the license-server command.
type LicenseServerConfig struct {
	HTTP  HTTPConfig         `yaml:"http"`
	Store LicenseStoreConfig `yaml:"store"`
	// WebhookSecret is the Stripe endpoint signing secret.
	WebhookSecret string `yaml:"webhook_secret"`
	// AdminTokenHash is a bcrypt hash; empty disables the admin routes.
	AdminTokenHash string `yaml:"admin_token_hash"`
}

// Validate validates the license server configuration.
func (c *LicenseServerConfig) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("license_server: %w", err)
	}
	return c.Store.Validate()
}

// LicenseStoreConfig selects and configures the license store.
type LicenseStoreConfig struct {
	Driver     string `yaml:"driver"`
	SQLitePath string `yaml:"sqlite_path"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
	// RedisPassword is usually supplied as ${REDIS_PASSWORD}.
	RedisPassword string `yaml:"redis_password"`
}

// Validate validates the license store configuration.
func (c *LicenseStoreConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StoreDriverSQLite, StoreDriverRedis)),
		validation.Field(&c.SQLitePath, validation.When(c.Driver == StoreDriverSQLite, validation.Required)),
		validation.Field(&c.RedisAddr, validation.When(c.Driver == StoreDriverRedis, validation.Required)),
		validation.Field(&c.RedisDB, validation.Min(0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Library: LibraryConfig{
			Path: "./library",
		},
		SQLite: SQLiteConfig{
			Path: "./hippomind.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Editor: EditorConfig{
			AutosaveInterval: mindmap.AutosaveInterval,
			Locale:           mindmap.DefaultLocale,
			Theme:            string(mindmap.DefaultThemeName),
		},
		License: LicenseConfig{
			Endpoint:  license.DefaultEndpoint,
			CachePath: "./license.json",
		},
		LicenseServer: LicenseServerConfig{
			HTTP: HTTPConfig{
				Port: 8090,
			},
			Store: LicenseStoreConfig{
				Driver:     StoreDriverSQLite,
				SQLitePath: "./licenses.db",
				RedisAddr:  "localhost:6379",
			},
		},
	}
}
