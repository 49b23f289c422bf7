package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Session timeout defaults.
const (
	DefaultIdleTimeout       = 5 * time.Minute
	DefaultBackgroundTimeout = 2 * time.Minute
	DefaultTickInterval      = 30 * time.Second
	DefaultNoticeDelay       = 300 * time.Millisecond
)

// DefaultExemptRoutes are the auth-flow screens on which no session
// exists to expire.
var DefaultExemptRoutes = []string{
	"/login", "/otp", "/activate", "/forgot-password",
}

// Config is the configuration for a sessionkit client.
type Config struct {
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`

	Session  *SessionBlock  `hcl:"session,block"`
	Storages []StorageBlock `hcl:"storage,block"`
	API      *APIBlock      `hcl:"api,block"`
}

// SessionBlock configures the idle/background session monitor.
type SessionBlock struct {
	IdleTimeout       string   `hcl:"idle_timeout,optional"`
	BackgroundTimeout string   `hcl:"background_timeout,optional"`
	TickInterval      string   `hcl:"tick_interval,optional"`
	NoticeDelay       string   `hcl:"notice_delay,optional"`
	ExemptRoutes      []string `hcl:"exempt_routes,optional"`
}

// StorageBlock configures one storage tier.
type StorageBlock struct {
	Type string `hcl:"type,label"` // "secure" or "cache"

	Path string `hcl:"path,optional"` // File system path of the store

	// Secure storage specific config
	KeyFile string `hcl:"key_file,optional"` // Master key file path
}

// APIBlock configures the remote API the client authenticates against.
type APIBlock struct {
	Address    string `hcl:"address"`
	LogoutPath string `hcl:"logout_path,optional"`
	Timeout    string `hcl:"timeout,optional"`
}

// LoadConfig parses an HCL configuration file.
func LoadConfig(configFile string) (*Config, error) {
	var config Config

	err := hclsimple.DecodeFile(configFile, nil, &config)
	if err != nil {
		return nil, err
	}
	return &config, nil
}

// GetStorageByType returns a storage block by its type label.
func (c *Config) GetStorageByType(storageType string) (*StorageBlock, error) {
	for i := range c.Storages {
		if c.Storages[i].Type == storageType {
			return &c.Storages[i], nil
		}
	}
	return nil, fmt.Errorf("storage '%s' not found", storageType)
}

// GetSecureStorage is a convenience method to get the secure storage block
func (c *Config) GetSecureStorage() (*StorageBlock, error) {
	return c.GetStorageByType("secure")
}

// GetCacheStorage is a convenience method to get the cache storage block
func (c *Config) GetCacheStorage() (*StorageBlock, error) {
	return c.GetStorageByType("cache")
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", value, err)
	}
	return d, nil
}

// Durations resolves every session duration, applying defaults for
// unset fields.
func (s *SessionBlock) Durations() (idle, background, tick, notice time.Duration, err error) {
	if s == nil {
		return DefaultIdleTimeout, DefaultBackgroundTimeout, DefaultTickInterval, DefaultNoticeDelay, nil
	}
	if idle, err = parseDuration(s.IdleTimeout, DefaultIdleTimeout); err != nil {
		return
	}
	if background, err = parseDuration(s.BackgroundTimeout, DefaultBackgroundTimeout); err != nil {
		return
	}
	if tick, err = parseDuration(s.TickInterval, DefaultTickInterval); err != nil {
		return
	}
	notice, err = parseDuration(s.NoticeDelay, DefaultNoticeDelay)
	return
}

// Routes returns the configured exempt routes or the defaults.
func (s *SessionBlock) Routes() []string {
	if s == nil || len(s.ExemptRoutes) == 0 {
		return DefaultExemptRoutes
	}
	return s.ExemptRoutes
}

// RequestTimeout resolves the API timeout, defaulting to 30s.
func (a *APIBlock) RequestTimeout() (time.Duration, error) {
	if a == nil {
		return 30 * time.Second, nil
	}
	return parseDuration(a.Timeout, 30*time.Second)
}
