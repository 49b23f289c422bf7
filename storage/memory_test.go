package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopsys/sessionkit/logger"
)

func TestMemoryStorage_PutGetDelete(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	mem := NewMemoryStorage(log)
	ctx := context.Background()

	_, err := mem.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, mem.Put(ctx, "key", "value"))

	value, err := mem.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)

	require.NoError(t, mem.Put(ctx, "key", "updated"))
	value, err = mem.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "updated", value)

	require.NoError(t, mem.Delete(ctx, "key"))
	_, err = mem.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting an absent key is a no-op.
	require.NoError(t, mem.Delete(ctx, "key"))
	assert.Equal(t, 0, mem.Len())
}

func TestMemoryStorage_FailureInjection(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	mem := NewMemoryStorage(log)
	ctx := context.Background()

	require.NoError(t, mem.Put(ctx, "key", "value"))

	mem.FailGet(true)
	_, err := mem.Get(ctx, "key")
	assert.ErrorIs(t, err, ErrUnavailable)
	mem.FailGet(false)

	mem.FailPut(true)
	assert.ErrorIs(t, mem.Put(ctx, "other", "value"), ErrUnavailable)
	mem.FailPut(false)

	mem.FailDelete(true)
	assert.ErrorIs(t, mem.Delete(ctx, "key"), ErrUnavailable)
	mem.FailDelete(false)

	value, err := mem.Get(ctx, "key")
	require.NoError(t, err)
	assert.Equal(t, "value", value)
}

func TestMemoryStorage_CancelledContext(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	mem := NewMemoryStorage(log)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, mem.Put(ctx, "key", "value"))
	_, err := mem.Get(ctx, "key")
	assert.Error(t, err)
}
