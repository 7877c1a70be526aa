package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "http://localhost:5000", cfg.Server.FrontendURL)
	assert.Equal(t, "http://localhost:8000/api", cfg.Inference.BaseURL)
	assert.Equal(t, 5*time.Minute, cfg.Inference.Timeout)
	assert.Equal(t, 1, cfg.Inference.MaxAttempts)
	assert.Equal(t, int64(50<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, DefaultSuppressed, cfg.Log.Suppress)
	assert.Equal(t, 5, cfg.Stats.RecentLimit)
	assert.False(t, cfg.UsesPostgres())
}

func TestLoadEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DEEPFAKE_SERVER_PORT", "8081")
	t.Setenv("DEEPFAKE_AUTH_JWTSECRET", "s3cret")
	t.Setenv("DEEPFAKE_INFERENCE_TIMEOUT", "30s")
	t.Setenv("DEEPFAKE_DATABASE_URL", "postgres://u:p@localhost/deepfake")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, 30*time.Second, cfg.Inference.Timeout)
	assert.True(t, cfg.UsesPostgres())
	assert.Equal(t, ":8081", cfg.Addr())
	assert.NoError(t, cfg.Validate())
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("DEEPFAKE_AUTH_JWTSECRET=from-file\nDEEPFAKE_LOG_LEVEL=debug\n"), 0o600))
	t.Setenv("DEEPFAKE_AUTH_JWTSECRET", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("DEEPFAKE_LOG_LEVEL") })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	base, err := Load()
	require.NoError(t, err)
	base.Auth.JWTSecret = "x"
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = " " }},
		{"zero upload limit", func(c *Config) { c.Upload.MaxBytes = 0 }},
		{"relative inference url", func(c *Config) { c.Inference.BaseURL = "/api" }},
		{"no attempts", func(c *Config) { c.Inference.MaxAttempts = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
