package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	log "github.com/coopsys/sessionkit/logger"
)

// CredentialStore is the slice of the credential store the monitor
// needs: token presence gates enforcement, ClearAll performs the wipe.
type CredentialStore interface {
	Token(ctx context.Context) string
	ClearAll(ctx context.Context) error
}

// RemoteInvalidator performs the best-effort remote session
// invalidation. The token is the snapshot taken before the local wipe;
// implementations must swallow their own errors.
type RemoteInvalidator interface {
	Logout(ctx context.Context, token string)
}

// Navigator replaces the entire navigation stack with one route, so
// the user cannot go "back" into authenticated screens.
type Navigator interface {
	ReplaceAll(route string)
}

// Notifier surfaces a dismissible user-visible message.
type Notifier interface {
	Notify(message string)
}

// RouteProvider reports the screen currently on top of the stack.
type RouteProvider interface {
	CurrentRoute() string
}

// Config holds the monitor thresholds and routes.
type Config struct {
	IdleTimeout       time.Duration
	BackgroundTimeout time.Duration
	TickInterval      time.Duration

	// NoticeDelay holds the expiry notice back until the navigation
	// transition has settled.
	NoticeDelay time.Duration

	// ExemptRoutes are auth-flow screens where no session exists to
	// expire.
	ExemptRoutes []string

	// LoginRoute is the unauthenticated entry screen.
	LoginRoute string
}

// DefaultConfig returns the documented defaults: 5 minute idle
// timeout, 2 minute background timeout, 30 second tick.
func DefaultConfig() *Config {
	return &Config{
		IdleTimeout:       5 * time.Minute,
		BackgroundTimeout: 2 * time.Minute,
		TickInterval:      30 * time.Second,
		NoticeDelay:       300 * time.Millisecond,
		ExemptRoutes:      []string{"/login", "/otp", "/activate", "/forgot-password"},
		LoginRoute:        "/login",
	}
}

// Monitor watches user activity and app lifecycle transitions and
// expires the session after the configured idle or backgrounded
// duration. One recurring ticker drives the idle check; lifecycle
// callbacks run inline, so a resume check always lands before the next
// tick.
type Monitor struct {
	creds    CredentialStore
	remote   RemoteInvalidator
	nav      Navigator
	notifier Notifier
	routes   RouteProvider
	clock    Clock
	config   *Config
	logger   log.Logger

	mu       sync.Mutex
	state    State
	activity Activity
	cycleID  string
	started  bool
	closed   bool

	exempt map[string]struct{}
	ticker *time.Ticker
	done   chan struct{}
	wg     sync.WaitGroup
}

// New builds a monitor. remote, routes and notifier may be nil; clock
// defaults to the system clock and config to DefaultConfig.
func New(creds CredentialStore, remote RemoteInvalidator, nav Navigator, notifier Notifier, routes RouteProvider, clock Clock, config *Config, logger log.Logger) *Monitor {
	if clock == nil {
		clock = SystemClock()
	}
	if config == nil {
		config = DefaultConfig()
	}

	exempt := make(map[string]struct{}, len(config.ExemptRoutes))
	for _, route := range config.ExemptRoutes {
		exempt[route] = struct{}{}
	}

	return &Monitor{
		creds:    creds,
		remote:   remote,
		nav:      nav,
		notifier: notifier,
		routes:   routes,
		clock:    clock,
		config:   config,
		logger:   logger,
		exempt:   exempt,
		done:     make(chan struct{}),
	}
}

// Start arms a fresh monitor cycle and launches the periodic idle
// check. Calling Start on a running monitor is a no-op: at most one
// ticker exists per monitor.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.armCycleLocked()
	m.ticker = time.NewTicker(m.config.TickInterval)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()
}

func (m *Monitor) run() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case <-m.ticker.C:
			m.Tick(context.Background())
		}
	}
}

// armCycleLocked resets the machine for a new session. Callers hold m.mu.
func (m *Monitor) armCycleLocked() {
	m.state = StateActive
	m.activity = Activity{LastActivityAt: m.clock.Now()}
	m.cycleID = uuid.NewString()
	m.logger.Debug("monitor cycle armed", log.String("cycle_id", m.cycleID))
}

// Reset arms a new cycle after a fresh login, so the previous cycle's
// terminal EXPIRED state does not leak into the new session.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.armCycleLocked()
}

// State returns the current session state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RecordActivity marks "now" as the most recent user interaction. It
// is wired to a root-level pointer/input listener and is cheap enough
// to call on every event.
func (m *Monitor) RecordActivity() {
	m.apply(context.Background(), ActivityInput{})
}

// HandleAppState feeds one platform lifecycle transition into the
// machine. The background check on resume runs synchronously here,
// before any pending tick can observe the same instant.
func (m *Monitor) HandleAppState(ctx context.Context, state AppState) {
	switch {
	case state == AppStateResumed:
		m.apply(ctx, ResumeInput{})
	case state.Backgrounded():
		m.apply(ctx, BackgroundInput{})
	default:
		// Inactive is transient; not a backgrounding signal.
	}
}

// Tick runs one idle check. The periodic ticker calls this; it is
// exported so hosts driving their own scheduler can call it directly.
func (m *Monitor) Tick(ctx context.Context) {
	// No session to expire on auth-flow screens.
	if m.routes != nil {
		if _, ok := m.exempt[m.routes.CurrentRoute()]; ok {
			return
		}
	}
	// Nothing to expire without a stored token.
	if m.creds.Token(ctx) == "" {
		return
	}

	m.apply(ctx, TickInput{})
}

func (m *Monitor) apply(ctx context.Context, in Input) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	timeouts := Timeouts{Idle: m.config.IdleTimeout, Background: m.config.BackgroundTimeout}
	d := Transition(m.clock.Now(), m.state, m.activity, in, timeouts)
	m.state = d.State
	m.activity = d.Activity
	cycleID := m.cycleID
	m.mu.Unlock()

	if d.Action == ActionExpire {
		m.expire(ctx, d.Reason, cycleID)
	}
}

// expire runs the expiry pipeline. The state flip to EXPIRED already
// happened under the lock, so only one caller ever gets here per
// cycle; the pipeline itself is idempotent anyway.
func (m *Monitor) expire(ctx context.Context, reason Reason, cycleID string) {
	m.logger.Info("session expired",
		log.String("reason", string(reason)),
		log.String("cycle_id", cycleID),
	)

	// Snapshot the token before the wipe: the invalidation request
	// must reach the server still carrying the session it revokes.
	token := m.creds.Token(ctx)

	// Best-effort remote invalidation, never awaited: the user-visible
	// expiry flow must not block on the network.
	if m.remote != nil && token != "" {
		m.goAsync(func() {
			m.remote.Logout(context.WithoutCancel(ctx), token)
		})
	}

	if err := m.creds.ClearAll(ctx); err != nil {
		m.logger.Warn("expiry proceeded past partial clear", log.Err(err))
	}

	// A stale lastActivityAt must not instantly re-expire the next
	// login.
	m.mu.Lock()
	m.activity.LastActivityAt = m.clock.Now()
	m.mu.Unlock()

	if m.nav != nil {
		m.nav.ReplaceAll(m.config.LoginRoute)
	}

	if m.notifier != nil {
		m.goAsync(func() {
			// Let the navigation transition settle before the notice
			// renders.
			select {
			case <-m.clock.After(m.config.NoticeDelay):
				m.notifier.Notify(reason.Message())
			case <-m.done:
			}
		})
	}
}

// goAsync runs fn on a tracked goroutine, unless the monitor is
// already closed. Registering with the wait group under the lock keeps
// Close from starting its wait between the closed check and the Add.
func (m *Monitor) goAsync(fn func()) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		fn()
	}()
}

// Close tears the monitor down: the ticker stops and no further input
// is accepted. Safe to call more than once.
func (m *Monitor) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	if m.ticker != nil {
		m.ticker.Stop()
	}
	m.mu.Unlock()

	close(m.done)
	m.wg.Wait()
	m.logger.Debug("monitor closed")
}
