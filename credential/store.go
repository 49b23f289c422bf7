package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/coopsys/sessionkit/helper"
	log "github.com/coopsys/sessionkit/logger"
	"github.com/coopsys/sessionkit/storage"
)

// Secure-tier keys. The refresh token slot exists so ClearTokens can
// honor its contract; sessions are single-lived and nothing issues one.
const (
	keyAuthToken    = "auth_token"
	keyRefreshToken = "refresh_token"
)

// Cache-tier keys.
const (
	keyOrganization = "organization"
)

var ErrEmptyToken = errors.New("credential: token is empty")

// Organization is the active tenant context. Its identifier scopes
// every outgoing request. Tenant identifiers are not secret, so the
// context lives in the fast cache tier, not the encrypted store.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Store owns the auth token and the tenant context. It is the single
// writer of token state; every other component either reads from it or
// calls ClearAll. Token presence is the sole truth of "logged in".
type Store struct {
	secure storage.Storage
	cache  storage.Storage
	mem    *storage.MemCache // process-lifetime mirrors, may be nil
	logger log.Logger
}

// NewStore builds a credential store over the encrypted tier and the
// fast cache tier. mem may be nil when no process cache is shared.
func NewStore(secure, cache storage.Storage, mem *storage.MemCache, logger log.Logger) *Store {
	return &Store{
		secure: secure,
		cache:  cache,
		mem:    mem,
		logger: logger,
	}
}

// SaveToken durably stores the bearer token. Write failures propagate:
// a token that could not be saved is a failed login, not a condition
// to paper over.
func (s *Store) SaveToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrEmptyToken
	}

	if err := s.secure.Put(ctx, keyAuthToken, token); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	s.logger.Debug("token saved",
		log.String("token_hash", helper.Get8BytesHash(token)))
	return nil
}

// Token returns the current bearer token, or "" when absent. A secure
// backend failure also reads as absent: callers must only ever
// distinguish "token" from "no token", never "error" from "logged out".
func (s *Store) Token(ctx context.Context) string {
	token, err := s.secure.Get(ctx, keyAuthToken)
	switch {
	case err == nil:
		return token
	case errors.Is(err, storage.ErrNotFound):
		return ""
	default:
		s.logger.Warn("secure backend unreadable, degrading to logged out",
			log.Err(err))
		return ""
	}
}

// ClearTokens removes the access and refresh tokens. The deletes are
// sequential; a failure of either still leaves no usable token, and
// both errors are reported.
func (s *Store) ClearTokens(ctx context.Context) error {
	var result *multierror.Error

	if err := s.secure.Delete(ctx, keyAuthToken); err != nil {
		result = multierror.Append(result, fmt.Errorf("auth token: %w", err))
	}
	if err := s.secure.Delete(ctx, keyRefreshToken); err != nil {
		result = multierror.Append(result, fmt.Errorf("refresh token: %w", err))
	}

	return result.ErrorOrNil()
}

// SaveOrganization caches the active tenant context.
func (s *Store) SaveOrganization(ctx context.Context, org Organization) error {
	raw, err := json.Marshal(org)
	if err != nil {
		return err
	}

	if err := s.cache.Put(ctx, keyOrganization, string(raw)); err != nil {
		return fmt.Errorf("failed to save organization: %w", err)
	}

	s.logger.Debug("organization saved", log.String("org_id", org.ID))
	return nil
}

// Organization returns the active tenant context, or nil when absent
// or unreadable.
func (s *Store) Organization(ctx context.Context) *Organization {
	raw, err := s.cache.Get(ctx, keyOrganization)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("cache unreadable, treating organization as absent",
				log.Err(err))
		}
		return nil
	}

	var org Organization
	if err := json.Unmarshal([]byte(raw), &org); err != nil {
		s.logger.Warn("discarding malformed organization entry", log.Err(err))
		return nil
	}
	return &org
}

// ClearAll wipes the encrypted tier, the cache tier, and the process
// cache. It is idempotent: clearing an already-empty store succeeds,
// and per-tier failures do not stop the remaining tiers from being
// cleared.
func (s *Store) ClearAll(ctx context.Context) error {
	var result *multierror.Error

	if err := s.ClearTokens(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.cache.Delete(ctx, keyOrganization); err != nil {
		result = multierror.Append(result, fmt.Errorf("organization: %w", err))
	}
	if s.mem != nil {
		s.mem.Clear()
	}

	if err := result.ErrorOrNil(); err != nil {
		s.logger.Warn("partial credential clear", log.Err(err))
		return err
	}

	s.logger.Info("credentials cleared")
	return nil
}
