package device

import (
	"context"
	"strings"
	"sync"

	"github.com/coopsys/sessionkit/helper"
	log "github.com/coopsys/sessionkit/logger"
)

const (
	keyDeviceID   = "device_id"
	keyDeviceName = "device_name"

	fallbackIDPrefix = "dev_"

	// UnknownDeviceName is returned when no tier and no probe can
	// produce a display name.
	UnknownDeviceName = "Unknown Device"
)

// Identity is the resolved device fingerprint.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Resolver produces a stable device id and display name through an
// ordered tier chain, reaching the hardware probe only when every tier
// misses. Once an id lands in the durable tier it is returned for the
// life of the installation.
type Resolver struct {
	mu     sync.Mutex
	tiers  []Tier
	probe  Probe
	logger log.Logger
}

// NewResolver builds a resolver over tiers ordered fastest-first; the
// final tier must be the durable store.
func NewResolver(tiers []Tier, probe Probe, logger log.Logger) *Resolver {
	return &Resolver{
		tiers:  tiers,
		probe:  probe,
		logger: logger,
	}
}

// GetOrCreateDeviceID returns the installation's stable device id,
// creating and persisting one if no tier holds it yet. The result is
// never empty. Safe for concurrent first resolution: the resolver
// mutex serializes the probe-and-persist step, so exactly one id
// reaches the durable tier.
func (r *Resolver) GetOrCreateDeviceID(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if id, hit, err := lookup(ctx, r.tiers, keyDeviceID, r.logger); err == nil {
		backfill(ctx, r.tiers, hit, keyDeviceID, id, r.logger)
		return id, nil
	}

	id, err := r.probe.DeviceID(ctx)
	if err != nil || strings.TrimSpace(id) == "" {
		id = fallbackIDPrefix + helper.GenerateULID()
		r.logger.Warn("hardware probe failed, synthesized device id",
			log.String("device_id", id), log.Err(err))
	}

	// The fallback is persisted too: whatever id we hand out now is
	// authoritative for this installation from here on.
	writeThrough(ctx, r.tiers, keyDeviceID, id, r.logger)

	r.logger.Info("device id resolved",
		log.String("device_id_hash", helper.Get8BytesHash(id)))
	return id, nil
}

// GetDeviceName returns the device's display name via the same tier
// chain. Probe failure degrades to the UnknownDeviceName literal.
func (r *Resolver) GetDeviceName(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	if name, hit, err := lookup(ctx, r.tiers, keyDeviceName, r.logger); err == nil {
		backfill(ctx, r.tiers, hit, keyDeviceName, name, r.logger)
		return name, nil
	}

	name, err := r.probe.DeviceName(ctx)
	if err != nil || strings.TrimSpace(name) == "" {
		name = UnknownDeviceName
	}

	writeThrough(ctx, r.tiers, keyDeviceName, name, r.logger)
	return name, nil
}

// PrewarmDeviceInfo eagerly resolves both values so later calls are
// tier-1 hits. Invoking it zero or many times has no effect beyond
// cache population.
func (r *Resolver) PrewarmDeviceInfo(ctx context.Context) error {
	if _, err := r.GetOrCreateDeviceID(ctx); err != nil {
		return err
	}
	_, err := r.GetDeviceName(ctx)
	return err
}
