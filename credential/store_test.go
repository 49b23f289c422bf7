package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopsys/sessionkit/logger"
	"github.com/coopsys/sessionkit/storage"
)

func newTestStore(t *testing.T) (*Store, *storage.MemoryStorage, *storage.MemoryStorage) {
	t.Helper()
	log := logger.NewZerologLogger(logger.TestConfig())
	secure := storage.NewMemoryStorage(log)
	cache := storage.NewMemoryStorage(log)
	mem, err := storage.NewMemCache(log, nil)
	require.NoError(t, err)
	t.Cleanup(func() { mem.Close() })
	return NewStore(secure, cache, mem, log), secure, cache
}

func TestStore_SaveAndReadToken(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	assert.Empty(t, store.Token(ctx))

	require.NoError(t, store.SaveToken(ctx, "tok_abc"))
	assert.Equal(t, "tok_abc", store.Token(ctx))
}

func TestStore_SaveToken_EmptyRejected(t *testing.T) {
	store, _, _ := newTestStore(t)
	assert.ErrorIs(t, store.SaveToken(context.Background(), ""), ErrEmptyToken)
}

func TestStore_SaveToken_WriteFailurePropagates(t *testing.T) {
	store, secure, _ := newTestStore(t)
	ctx := context.Background()

	// A failed token save is a failed login and must surface.
	secure.FailPut(true)
	assert.Error(t, store.SaveToken(ctx, "tok_abc"))
}

func TestStore_Token_BackendFailureReadsAsLoggedOut(t *testing.T) {
	store, secure, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveToken(ctx, "tok_abc"))

	secure.FailGet(true)
	assert.Empty(t, store.Token(ctx))
}

func TestStore_Organization(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	assert.Nil(t, store.Organization(ctx))

	org := Organization{ID: "org-42", Name: "Umoja SACCO"}
	require.NoError(t, store.SaveOrganization(ctx, org))

	got := store.Organization(ctx)
	require.NotNil(t, got)
	assert.Equal(t, "org-42", got.ID)
	assert.Equal(t, "Umoja SACCO", got.Name)
}

func TestStore_ClearAll(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveToken(ctx, "tok_abc"))
	require.NoError(t, store.SaveOrganization(ctx, Organization{ID: "org-42"}))

	require.NoError(t, store.ClearAll(ctx))

	assert.Empty(t, store.Token(ctx))
	assert.Nil(t, store.Organization(ctx))

	// Idempotent: clearing an already-empty store succeeds.
	require.NoError(t, store.ClearAll(ctx))
	assert.Empty(t, store.Token(ctx))
}

func TestStore_ClearAll_ContinuesPastTierFailure(t *testing.T) {
	store, secure, cache := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveToken(ctx, "tok_abc"))
	require.NoError(t, store.SaveOrganization(ctx, Organization{ID: "org-42"}))

	// The secure tier failing must not keep the cache tier dirty.
	secure.FailDelete(true)
	err := store.ClearAll(ctx)
	assert.Error(t, err)
	assert.Nil(t, store.Organization(ctx))
	_ = cache

	// Once the tier recovers, a second clear finishes the job.
	secure.FailDelete(false)
	require.NoError(t, store.ClearAll(ctx))
	assert.Empty(t, store.Token(ctx))
}

func TestStore_ClearTokens_RemovesBothSlots(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	secure := storage.NewMemoryStorage(log)
	cache := storage.NewMemoryStorage(log)
	store := NewStore(secure, cache, nil, log)
	ctx := context.Background()

	require.NoError(t, secure.Put(ctx, "auth_token", "tok_abc"))
	require.NoError(t, secure.Put(ctx, "refresh_token", "ref_xyz"))

	require.NoError(t, store.ClearTokens(ctx))
	assert.Equal(t, 0, secure.Len())
}
