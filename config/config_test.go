package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessionkit.hcl")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfig_Full(t *testing.T) {
	path := writeConfig(t, `
log_level  = "debug"
log_format = "json"

session {
  idle_timeout       = "10m"
  background_timeout = "90s"
  tick_interval      = "15s"
  exempt_routes      = ["/login", "/otp"]
}

storage "secure" {
  path     = "/var/lib/app/secure.json"
  key_file = "/var/lib/app/master.key"
}

storage "cache" {
  path = "/var/lib/app/cache.json"
}

api {
  address     = "https://api.example.com"
  logout_path = "/v1/auth/logout"
  timeout     = "10s"
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)

	idle, background, tick, notice, err := cfg.Session.Durations()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, idle)
	assert.Equal(t, 90*time.Second, background)
	assert.Equal(t, 15*time.Second, tick)
	assert.Equal(t, DefaultNoticeDelay, notice)
	assert.Equal(t, []string{"/login", "/otp"}, cfg.Session.Routes())

	secure, err := cfg.GetSecureStorage()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/app/secure.json", secure.Path)
	assert.Equal(t, "/var/lib/app/master.key", secure.KeyFile)

	cache, err := cfg.GetCacheStorage()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/app/cache.json", cache.Path)

	require.NotNil(t, cfg.API)
	timeout, err := cfg.API.RequestTimeout()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, timeout)
}

func TestLoadConfig_DefaultsWhenSessionOmitted(t *testing.T) {
	path := writeConfig(t, `
storage "secure" {
  path = "secure.json"
}
storage "cache" {
  path = "cache.json"
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	idle, background, tick, notice, err := cfg.Session.Durations()
	require.NoError(t, err)
	assert.Equal(t, DefaultIdleTimeout, idle)
	assert.Equal(t, DefaultBackgroundTimeout, background)
	assert.Equal(t, DefaultTickInterval, tick)
	assert.Equal(t, DefaultNoticeDelay, notice)
	assert.Equal(t, DefaultExemptRoutes, cfg.Session.Routes())
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
session {
  idle_timeout = "five minutes"
}
storage "secure" {
  path = "secure.json"
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, _, _, _, err = cfg.Session.Durations()
	assert.Error(t, err)
}

func TestConfig_MissingStorageBlock(t *testing.T) {
	path := writeConfig(t, `
storage "cache" {
  path = "cache.json"
}
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, err = cfg.GetSecureStorage()
	assert.Error(t, err)
}
