package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	log "github.com/coopsys/sessionkit/logger"
)

const (
	// DefaultLogoutPath is the remote session invalidation endpoint.
	DefaultLogoutPath = "/v1/auth/logout"

	// DefaultLogoutTimeout bounds the best-effort logout so it can
	// never stall a user-visible expiry flow.
	DefaultLogoutTimeout = 5 * time.Second
)

// Config is used to configure the creation of the client.
type Config struct {
	// Address is the base URL of the remote API, such as
	// "https://api.example.com".
	Address string

	// HttpClient is the HTTP client to use; its Transport should be
	// (or wrap) an Authenticator. A default is built from the
	// Authenticator passed to NewClient when nil.
	HttpClient *http.Client

	// LogoutPath overrides DefaultLogoutPath.
	LogoutPath string

	// MinRetryWait controls the minimum time to wait before retrying
	// when a 5xx error occurs.
	MinRetryWait time.Duration

	// MaxRetryWait controls the maximum time to wait before retrying
	// when a 5xx error occurs.
	MaxRetryWait time.Duration

	// MaxRetries controls the maximum number of times to retry when a
	// 5xx error occurs. Set to 0 to disable retrying.
	MaxRetries int

	// Timeout applies per request unless the context carries an
	// earlier deadline.
	Timeout time.Duration

	// Limiter rate-limits outgoing requests when non-nil.
	Limiter *rate.Limiter

	// Logger receives client-level logs.
	Logger log.Logger
}

// DefaultClientConfig returns the retry and timeout defaults.
func DefaultClientConfig() *Config {
	return &Config{
		MinRetryWait: 1000 * time.Millisecond,
		MaxRetryWait: 1500 * time.Millisecond,
		MaxRetries:   2,
		Timeout:      30 * time.Second,
		LogoutPath:   DefaultLogoutPath,
	}
}

// Client talks to the remote API through the authenticator. Transient
// transport and 5xx failures retry with backoff; a 401 never does.
type Client struct {
	addr   *url.URL
	config *Config
	http   *retryablehttp.Client
	logger log.Logger
}

// NewClient builds a client over the given authenticator. config may
// be nil for defaults.
func NewClient(authenticator *Authenticator, config *Config) (*Client, error) {
	defaults := DefaultClientConfig()
	if config == nil {
		config = defaults
	}
	if config.Address == "" {
		return nil, fmt.Errorf("client address is required")
	}
	if config.LogoutPath == "" {
		config.LogoutPath = defaults.LogoutPath
	}
	if config.MinRetryWait == 0 {
		config.MinRetryWait = defaults.MinRetryWait
	}
	if config.MaxRetryWait == 0 {
		config.MaxRetryWait = defaults.MaxRetryWait
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.Logger == nil {
		config.Logger = log.NewZerologLogger(log.DefaultConfig())
	}

	addr, err := url.Parse(config.Address)
	if err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	httpClient := config.HttpClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: authenticator,
			Timeout:   config.Timeout,
		}
	}

	retryClient := &retryablehttp.Client{
		HTTPClient:   httpClient,
		RetryWaitMin: config.MinRetryWait,
		RetryWaitMax: config.MaxRetryWait,
		RetryMax:     config.MaxRetries,
		Logger:       &leveledLogger{config.Logger},
		CheckRetry:   retryablehttp.DefaultRetryPolicy,
		Backoff:      retryablehttp.DefaultBackoff,
	}

	return &Client{
		addr:   addr,
		config: config,
		http:   retryClient,
		logger: config.Logger,
	}, nil
}

// Do performs an authenticated request against the remote API. The
// body, when non-nil, must be replayable for retries (bytes, string,
// or a retryablehttp-supported reader).
func (c *Client) Do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	if c.config.Limiter != nil {
		if err := c.config.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.addr.JoinPath(path).String(), body)
	if err != nil {
		return nil, err
	}

	return c.http.Do(req)
}

// Logout tells the remote side to invalidate the session identified by
// token. The token is explicit because callers clear the credential
// store right after scheduling this call; by the time the request goes
// out, reading it back through the authenticator finds nothing. It is
// best-effort by design: timeouts, connectivity loss and error
// statuses are all swallowed, because local expiry must complete
// regardless of what the server thinks.
func (c *Client) Logout(ctx context.Context, token string) {
	ctx, cancel := context.WithTimeout(ctx, DefaultLogoutTimeout)
	defer cancel()

	if c.config.Limiter != nil {
		if err := c.config.Limiter.Wait(ctx); err != nil {
			return
		}
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.addr.JoinPath(c.config.LogoutPath).String(), nil)
	if err != nil {
		c.logger.Debug("best-effort logout failed", log.Err(err))
		return
	}
	if token != "" {
		req.Header.Set(HeaderAuthorization, "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("best-effort logout failed", log.Err(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		c.logger.Debug("best-effort logout rejected",
			log.Int("status", resp.StatusCode))
	}
}

// leveledLogger adapts logger.Logger to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log log.Logger
}

func (l *leveledLogger) fields(keysAndValues []interface{}) []log.TypedField {
	fields := make([]log.TypedField, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", keysAndValues[i])
		}
		fields = append(fields, log.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func (l *leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, l.fields(keysAndValues)...)
}

func (l *leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Info(msg, l.fields(keysAndValues)...)
}

func (l *leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, l.fields(keysAndValues)...)
}

func (l *leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn(msg, l.fields(keysAndValues)...)
}
