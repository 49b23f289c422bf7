// Package client composes the sessionkit components: credential store,
// device identity resolver, request authenticator and session monitor
// are built once, with explicit dependencies, at application start.
package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coopsys/sessionkit/config"
	"github.com/coopsys/sessionkit/credential"
	"github.com/coopsys/sessionkit/device"
	log "github.com/coopsys/sessionkit/logger"
	"github.com/coopsys/sessionkit/monitor"
	"github.com/coopsys/sessionkit/storage"
	"github.com/coopsys/sessionkit/transport"
)

// Options carries the host-provided collaborators. Navigator, Notifier
// and Routes come from the UI layer; everything else has defaults.
type Options struct {
	Config *config.Config

	Navigator monitor.Navigator
	Notifier  monitor.Notifier
	Routes    monitor.RouteProvider

	// Probe overrides the platform identity probe (tests).
	Probe device.Probe

	// Clock overrides the monitor clock (tests).
	Clock monitor.Clock

	// BaseTransport overrides the authenticator's inner transport.
	BaseTransport http.RoundTripper

	Logger log.Logger
}

// Client is the composed session and device-identity lifecycle
// manager.
type Client struct {
	store    *credential.Store
	resolver *device.Resolver
	auth     *transport.Authenticator
	api      *transport.Client
	monitor  *monitor.Monitor

	mem    *storage.MemCache
	logger log.Logger
}

// New wires the components from configuration. The returned client is
// not yet monitoring; call Start once the UI is up.
func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = buildLogger(cfg)
	}

	secureBlock, err := cfg.GetSecureStorage()
	if err != nil {
		return nil, err
	}
	cacheBlock, err := cfg.GetCacheStorage()
	if err != nil {
		return nil, err
	}

	secure, err := storage.NewSecureFile(secureBlock.Path, secureBlock.KeyFile, logger.WithSubsystem("secure"))
	if err != nil {
		return nil, fmt.Errorf("failed to open secure storage: %w", err)
	}
	cache, err := storage.NewFileCache(cacheBlock.Path, logger.WithSubsystem("cache"))
	if err != nil {
		return nil, fmt.Errorf("failed to open cache storage: %w", err)
	}
	mem, err := storage.NewMemCache(logger.WithSubsystem("memcache"), nil)
	if err != nil {
		return nil, err
	}

	store := credential.NewStore(secure, cache, mem, logger.WithSubsystem("credential"))

	probe := opts.Probe
	if probe == nil {
		probe = device.NewHostProbe()
	}
	resolver := device.NewResolver([]device.Tier{
		{Name: "memory", Store: mem},
		{Name: "cache", Store: cache},
		{Name: "secure", Store: secure},
	}, probe, logger.WithSubsystem("device"))

	idle, background, tick, notice, err := cfg.Session.Durations()
	if err != nil {
		return nil, err
	}
	monCfg := monitor.DefaultConfig()
	monCfg.IdleTimeout = idle
	monCfg.BackgroundTimeout = background
	monCfg.TickInterval = tick
	monCfg.NoticeDelay = notice
	monCfg.ExemptRoutes = cfg.Session.Routes()

	// A 401 is a hard session reset: wipe local state and land the
	// user on the login screen with no way back.
	onReset := func(ctx context.Context) {
		_ = store.ClearAll(ctx)
		if opts.Navigator != nil {
			opts.Navigator.ReplaceAll(monCfg.LoginRoute)
		}
	}

	auth := transport.NewAuthenticator(opts.BaseTransport, store, resolver, onReset, logger.WithSubsystem("transport"))

	var api *transport.Client
	var remote monitor.RemoteInvalidator
	if cfg.API != nil {
		timeout, err := cfg.API.RequestTimeout()
		if err != nil {
			return nil, err
		}
		clientCfg := transport.DefaultClientConfig()
		clientCfg.Address = cfg.API.Address
		clientCfg.Timeout = timeout
		if cfg.API.LogoutPath != "" {
			clientCfg.LogoutPath = cfg.API.LogoutPath
		}
		clientCfg.Logger = logger.WithSubsystem("api")
		api, err = transport.NewClient(auth, clientCfg)
		if err != nil {
			return nil, err
		}
		remote = api
	}

	mon := monitor.New(store, remote, opts.Navigator, opts.Notifier, opts.Routes,
		opts.Clock, monCfg, logger.WithSubsystem("monitor"))

	return &Client{
		store:    store,
		resolver: resolver,
		auth:     auth,
		api:      api,
		monitor:  mon,
		mem:      mem,
		logger:   logger,
	}, nil
}

func buildLogger(cfg *config.Config) log.Logger {
	logCfg := log.DefaultConfig()
	if cfg.LogLevel != "" {
		logCfg.Level = log.ParseLogLevel(cfg.LogLevel)
	}
	if cfg.LogFormat != "" {
		logCfg.Format = log.ParseOutputFormat(cfg.LogFormat)
	}
	if cfg.LogFile != "" {
		fileCfg := log.DefaultFileConfig(cfg.LogFile)
		if cfg.LogRotateMegabytes != 0 {
			fileCfg.MaxSize = cfg.LogRotateMegabytes
		}
		if cfg.LogRotateMaxFiles != 0 {
			fileCfg.MaxBackups = cfg.LogRotateMaxFiles
		}
		logCfg.FileConfig = fileCfg
	}
	return log.NewZerologLogger(logCfg)
}

// Start prewarms the device identity caches and arms the session
// monitor.
func (c *Client) Start(ctx context.Context) error {
	if err := c.resolver.PrewarmDeviceInfo(ctx); err != nil {
		return err
	}
	c.monitor.Start()
	return nil
}

// Login durably stores the session credentials and arms a fresh
// monitor cycle so a stale activity record cannot instantly re-expire
// the new session.
func (c *Client) Login(ctx context.Context, token string, org credential.Organization) error {
	if err := c.store.SaveToken(ctx, token); err != nil {
		return err
	}
	if err := c.store.SaveOrganization(ctx, org); err != nil {
		return err
	}
	c.monitor.Reset()
	return nil
}

// RecordActivity is wired to a root-level input listener.
func (c *Client) RecordActivity() {
	c.monitor.RecordActivity()
}

// HandleAppState feeds a platform lifecycle transition to the monitor.
func (c *Client) HandleAppState(ctx context.Context, state monitor.AppState) {
	c.monitor.HandleAppState(ctx, state)
}

// Token returns the current bearer token, or "" when logged out.
func (c *Client) Token(ctx context.Context) string {
	return c.store.Token(ctx)
}

// GetOrCreateDeviceID returns the stable device id.
func (c *Client) GetOrCreateDeviceID(ctx context.Context) (string, error) {
	return c.resolver.GetOrCreateDeviceID(ctx)
}

// GetDeviceName returns the device display name.
func (c *Client) GetDeviceName(ctx context.Context) (string, error) {
	return c.resolver.GetDeviceName(ctx)
}

// Store exposes the credential store to the host's login flow.
func (c *Client) Store() *credential.Store { return c.store }

// API exposes the authenticated API client; nil when no api block was
// configured.
func (c *Client) API() *transport.Client { return c.api }

// Monitor exposes the session monitor.
func (c *Client) Monitor() *monitor.Monitor { return c.monitor }

// Close tears down the monitor and the process cache.
func (c *Client) Close() error {
	c.monitor.Close()
	if err := c.mem.Close(); err != nil {
		return err
	}
	return c.logger.Close()
}
