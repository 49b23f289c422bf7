package device

import (
	"context"
	"errors"

	log "github.com/coopsys/sessionkit/logger"
	"github.com/coopsys/sessionkit/storage"
)

// Tier is one layer of the identity cache chain. Tiers are consulted
// fastest-first; the last tier is the durable (encrypted) store and is
// authoritative. Faster tiers are only ever refreshed from slower
// ones, never the reverse, except on first resolution.
type Tier struct {
	Name  string
	Store storage.Storage
}

// lookup walks the tiers in order and returns the first hit along with
// the index it was found at. A miss at every tier returns
// storage.ErrNotFound.
func lookup(ctx context.Context, tiers []Tier, key string, logger log.Logger) (string, int, error) {
	for i, tier := range tiers {
		value, err := tier.Store.Get(ctx, key)
		switch {
		case err == nil && value != "":
			return value, i, nil
		case err == nil || errors.Is(err, storage.ErrNotFound):
			continue
		case ctx.Err() != nil:
			return "", 0, err
		default:
			// An unreadable tier is skipped, not fatal: a slower
			// tier or the probe can still resolve the value.
			logger.Warn("identity tier unreadable",
				log.String("tier", tier.Name),
				log.String("key", key),
				log.Err(err))
		}
	}
	return "", 0, storage.ErrNotFound
}

// backfill writes value into tiers[0:upto] so later lookups hit the
// fastest tier first.
func backfill(ctx context.Context, tiers []Tier, upto int, key, value string, logger log.Logger) {
	for _, tier := range tiers[:upto] {
		if err := tier.Store.Put(ctx, key, value); err != nil {
			logger.Warn("failed to backfill identity tier",
				log.String("tier", tier.Name),
				log.String("key", key),
				log.Err(err))
		}
	}
}

// writeThrough persists value into every tier, fastest first.
func writeThrough(ctx context.Context, tiers []Tier, key, value string, logger log.Logger) {
	backfill(ctx, tiers, len(tiers), key, value, logger)
}
