// Package config loads the server configuration once at startup.
//
// SOURCES (later wins):
//  1. Defaults set in setDefaults
//  2. An optional .env file in the working directory
//  3. Real environment variables
//
// Everything is validated before the server starts: a missing JWT secret is
// a startup error, never a 500 on the first login.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const minSecretLength = 16

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Auth     AuthConfig
	JWT      JWTConfig
	GitHub   GitHubConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int
	APIPrefix   string // e.g. "/api/v1"; "" mounts the API at the root
	CORSOrigin  string
	FrontendURL string // where the GitHub callback sends the browser
}

type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level slog.Level
}

// AuthConfig holds password and cookie settings.
type AuthConfig struct {
	BcryptCost   int
	CookieSecure bool
}

// JWTConfig holds token signing settings. The two secrets must differ.
type JWTConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// GitHubConfig is optional; sign-in with GitHub is enabled only when
// ClientID is set.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Enabled reports whether GitHub sign-in is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != ""
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()

	if _, err := os.Stat(".env"); err == nil {
		v.SetConfigFile(".env")
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading .env: %w", err)
		}
	}

	v.AutomaticEnv()

	return FromViper(v)
}

// FromViper builds a validated Config from an already-populated viper
// instance. Tests use it with v.Set instead of touching the environment.
func FromViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg, err := bindConfig(v)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("CORS_ORIGIN", "http://localhost:3000")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")

	// Database
	v.SetDefault("DB_PATH", "data/tasks.db")

	// Logging
	v.SetDefault("LOG_LEVEL", "info")

	// Auth
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("COOKIE_SECURE", true)

	// JWT (the secrets have no defaults on purpose)
	v.SetDefault("JWT_ACCESS_EXPIRY", "15m")
	v.SetDefault("JWT_REFRESH_EXPIRY", "168h") // 7 days
	v.SetDefault("JWT_ISSUER", "task-manager")
}

func bindConfig(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	// Server
	cfg.Server.Port = v.GetInt("PORT")
	cfg.Server.APIPrefix = normalizePrefix(v.GetString("API_PREFIX"))
	cfg.Server.CORSOrigin = v.GetString("CORS_ORIGIN")
	cfg.Server.FrontendURL = v.GetString("FRONTEND_URL")

	// Database
	cfg.Database.Path = v.GetString("DB_PATH")

	// Logging
	if err := cfg.Log.Level.UnmarshalText([]byte(v.GetString("LOG_LEVEL"))); err != nil {
		return nil, fmt.Errorf("config: invalid LOG_LEVEL %q", v.GetString("LOG_LEVEL"))
	}

	// Auth
	cfg.Auth.BcryptCost = v.GetInt("BCRYPT_COST")
	cfg.Auth.CookieSecure = v.GetBool("COOKIE_SECURE")

	// JWT
	cfg.JWT.AccessSecret = v.GetString("JWT_ACCESS_SECRET")
	cfg.JWT.RefreshSecret = v.GetString("JWT_REFRESH_SECRET")
	cfg.JWT.AccessTTL = v.GetDuration("JWT_ACCESS_EXPIRY")
	cfg.JWT.RefreshTTL = v.GetDuration("JWT_REFRESH_EXPIRY")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// GitHub
	cfg.GitHub.ClientID = v.GetString("GITHUB_CLIENT_ID")
	cfg.GitHub.ClientSecret = v.GetString("GITHUB_CLIENT_SECRET")
	cfg.GitHub.CallbackURL = v.GetString("GITHUB_CALLBACK_URL")
	if cfg.GitHub.Enabled() && cfg.GitHub.CallbackURL == "" {
		cfg.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d%s/auth/github/callback",
			cfg.Server.Port, cfg.Server.APIPrefix)
	}

	return cfg, nil
}

// normalizePrefix turns "api/v1/", "/api/v1/" and "/api/v1" into "/api/v1",
// and "/" into "".
func normalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid PORT: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return errors.New("DB_PATH is required")
	}

	// bcrypt accepts 4..31, but anything above 14 makes every login take
	// seconds.
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 14 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 14, got %d", c.Auth.BcryptCost)
	}

	if c.JWT.AccessSecret == "" {
		return errors.New("JWT_ACCESS_SECRET is required")
	}
	if c.JWT.RefreshSecret == "" {
		return errors.New("JWT_REFRESH_SECRET is required")
	}
	if len(c.JWT.AccessSecret) < minSecretLength || len(c.JWT.RefreshSecret) < minSecretLength {
		return fmt.Errorf("JWT secrets must be at least %d characters", minSecretLength)
	}
	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT expiries must be positive durations")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return fmt.Errorf("JWT_ACCESS_EXPIRY (%s) must be shorter than JWT_REFRESH_EXPIRY (%s)",
			c.JWT.AccessTTL, c.JWT.RefreshTTL)
	}
	if c.JWT.Issuer == "" {
		return errors.New("JWT_ISSUER must not be empty")
	}

	if c.GitHub.Enabled() != (c.GitHub.ClientSecret != "") {
		return errors.New("GITHUB_CLIENT_ID and GITHUB_CLIENT_SECRET must be set together")
	}
	if c.GitHub.Enabled() && c.Server.FrontendURL == "" {
		return errors.New("FRONTEND_URL is required when GitHub sign-in is enabled")
	}

	return nil
}
