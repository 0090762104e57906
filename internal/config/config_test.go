package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validViper returns a viper instance holding the minimum settings Validate
// accepts.
func validViper() *viper.Viper {
	v := viper.New()
	v.Set("JWT_ACCESS_SECRET", "access-secret-0123456789")
	v.Set("JWT_REFRESH_SECRET", "refresh-secret-0123456789")
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(validViper())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/api/v1", cfg.Server.APIPrefix)
	assert.Equal(t, "http://localhost:3000", cfg.Server.CORSOrigin)
	assert.Equal(t, "http://localhost:3000", cfg.Server.FrontendURL)
	assert.Equal(t, "data/tasks.db", cfg.Database.Path)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, "task-manager", cfg.JWT.Issuer)
	assert.False(t, cfg.GitHub.Enabled())
}

func TestFromViper_Overrides(t *testing.T) {
	v := validViper()
	v.Set("PORT", "9090")
	v.Set("API_PREFIX", "api/v2/")
	v.Set("LOG_LEVEL", "debug")
	v.Set("BCRYPT_COST", "4")
	v.Set("COOKIE_SECURE", "false")
	v.Set("JWT_ACCESS_EXPIRY", "5m")
	v.Set("JWT_REFRESH_EXPIRY", "24h")

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/api/v2", cfg.Server.APIPrefix)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, 4, cfg.Auth.BcryptCost)
	assert.False(t, cfg.Auth.CookieSecure)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWT.RefreshTTL)
}

func TestFromViper_GitHubCallbackDefault(t *testing.T) {
	v := validViper()
	v.Set("GITHUB_CLIENT_ID", "id")
	v.Set("GITHUB_CLIENT_SECRET", "secret")

	cfg, err := FromViper(v)
	require.NoError(t, err)

	assert.True(t, cfg.GitHub.Enabled())
	assert.Equal(t, "http://localhost:8080/api/v1/auth/github/callback", cfg.GitHub.CallbackURL)
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]any
	}{
		{"missing access secret", map[string]any{"JWT_ACCESS_SECRET": ""}},
		{"missing refresh secret", map[string]any{"JWT_REFRESH_SECRET": ""}},
		{"short secret", map[string]any{"JWT_ACCESS_SECRET": "short"}},
		{"equal secrets", map[string]any{"JWT_REFRESH_SECRET": "access-secret-0123456789"}},
		{"access not shorter than refresh", map[string]any{"JWT_ACCESS_EXPIRY": "2h", "JWT_REFRESH_EXPIRY": "1h"}},
		{"zero expiry", map[string]any{"JWT_ACCESS_EXPIRY": "0s"}},
		{"bcrypt cost too low", map[string]any{"BCRYPT_COST": 3}},
		{"bcrypt cost too high", map[string]any{"BCRYPT_COST": 15}},
		{"bad port", map[string]any{"PORT": 70000}},
		{"bad log level", map[string]any{"LOG_LEVEL": "loud"}},
		{"github id without secret", map[string]any{"GITHUB_CLIENT_ID": "id"}},
		{"github secret without id", map[string]any{"GITHUB_CLIENT_SECRET": "secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validViper()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := FromViper(v)
			assert.Error(t, err)
		})
	}
}

func TestNormalizePrefix(t *testing.T) {
	tests := map[string]string{
		"/api/v1":  "/api/v1",
		"/api/v1/": "/api/v1",
		"api":      "/api",
		"/":        "",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePrefix(in), "normalizePrefix(%q)", in)
	}
}

func TestLoad_ReadsEnvFileAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	env := "JWT_ACCESS_SECRET=file-access-secret-0123\n" +
		"JWT_REFRESH_SECRET=file-refresh-secret-0123\n" +
		"PORT=7070\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0o600))
	t.Chdir(dir)

	// Real environment variables win over the file.
	t.Setenv("PORT", "7171")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file-access-secret-0123", cfg.JWT.AccessSecret)
	assert.Equal(t, 7171, cfg.Server.Port)
}

func TestLoad_WithoutEnvFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("JWT_ACCESS_SECRET", "env-access-secret-0123")
	t.Setenv("JWT_REFRESH_SECRET", "env-refresh-secret-0123")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-refresh-secret-0123", cfg.JWT.RefreshSecret)
}
