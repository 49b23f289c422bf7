package device

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coopsys/sessionkit/logger"
	"github.com/coopsys/sessionkit/storage"
)

type fakeProbe struct {
	id        string
	name      string
	idErr     error
	nameErr   error
	idCalls   atomic.Int32
	nameCalls atomic.Int32
}

func (p *fakeProbe) DeviceID(ctx context.Context) (string, error) {
	p.idCalls.Add(1)
	return p.id, p.idErr
}

func (p *fakeProbe) DeviceName(ctx context.Context) (string, error) {
	p.nameCalls.Add(1)
	return p.name, p.nameErr
}

func testTiers(t *testing.T, durable storage.Storage) []Tier {
	t.Helper()
	log := logger.NewZerologLogger(logger.TestConfig())
	return []Tier{
		{Name: "memory", Store: storage.NewMemoryStorage(log)},
		{Name: "cache", Store: storage.NewMemoryStorage(log)},
		{Name: "secure", Store: durable},
	}
}

func TestResolver_StableWithinProcess(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	probe := &fakeProbe{id: "hw-123", name: "Pixel 6"}
	r := NewResolver(testTiers(t, storage.NewMemoryStorage(log)), probe, log)
	ctx := context.Background()

	first, err := r.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hw-123", first)

	for i := 0; i < 10; i++ {
		id, err := r.GetOrCreateDeviceID(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, id)
	}

	// Only the very first resolution reaches the hardware probe.
	assert.Equal(t, int32(1), probe.idCalls.Load())
}

func TestResolver_StableAcrossRestart(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	durable := storage.NewMemoryStorage(log)
	ctx := context.Background()

	r := NewResolver(testTiers(t, durable), &fakeProbe{id: "hw-123"}, log)
	first, err := r.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)

	// "Restart": fresh fast tiers, durable tier intact, probe now
	// denied. The durable tier must still win.
	tiers := testTiers(t, durable)
	r2 := NewResolver(tiers, &fakeProbe{idErr: ErrProbeUnavailable}, log)

	id, err := r2.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, id)

	// The hit backfilled the faster tiers.
	cached, err := tiers[0].Store.Get(ctx, keyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, first, cached)
}

func TestResolver_ProbeFailureSynthesizesFallback(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	durable := storage.NewMemoryStorage(log)
	r := NewResolver(testTiers(t, durable), &fakeProbe{idErr: errors.New("denied")}, log)
	ctx := context.Background()

	id, err := r.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "dev_"), "got %q", id)

	// The fallback is persisted and authoritative from now on.
	persisted, err := durable.Get(ctx, keyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, id, persisted)

	again, err := r.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestResolver_EmptyProbeResultSynthesizesFallback(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	r := NewResolver(testTiers(t, storage.NewMemoryStorage(log)), &fakeProbe{id: "  "}, log)

	id, err := r.GetOrCreateDeviceID(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.True(t, strings.HasPrefix(id, "dev_"))
}

func TestResolver_DeviceNameFallback(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	r := NewResolver(testTiers(t, storage.NewMemoryStorage(log)), &fakeProbe{nameErr: errors.New("denied")}, log)

	name, err := r.GetDeviceName(context.Background())
	require.NoError(t, err)
	assert.Equal(t, UnknownDeviceName, name)
}

func TestResolver_ConcurrentFirstResolution(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	durable := storage.NewMemoryStorage(log)
	r := NewResolver(testTiers(t, durable), &fakeProbe{id: "hw-123"}, log)
	ctx := context.Background()

	const callers = 8
	results := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.GetOrCreateDeviceID(ctx)
			assert.NoError(t, err)
			results[i] = id
		}(i)
	}
	wg.Wait()

	for _, id := range results {
		assert.Equal(t, results[0], id)
	}

	persisted, err := durable.Get(ctx, keyDeviceID)
	require.NoError(t, err)
	assert.Equal(t, results[0], persisted)
}

func TestResolver_Prewarm(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	probe := &fakeProbe{id: "hw-123", name: "Pixel 6"}
	r := NewResolver(testTiers(t, storage.NewMemoryStorage(log)), probe, log)
	ctx := context.Background()

	require.NoError(t, r.PrewarmDeviceInfo(ctx))
	require.NoError(t, r.PrewarmDeviceInfo(ctx))

	id, err := r.GetOrCreateDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "hw-123", id)

	name, err := r.GetDeviceName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pixel 6", name)

	assert.Equal(t, int32(1), probe.idCalls.Load())
	assert.Equal(t, int32(1), probe.nameCalls.Load())
}

func TestResolver_SkipsUnreadableTier(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	broken := storage.NewMemoryStorage(log)
	broken.FailGet(true)
	durable := storage.NewMemoryStorage(log)
	require.NoError(t, durable.Put(context.Background(), keyDeviceID, "hw-999"))

	r := NewResolver([]Tier{
		{Name: "memory", Store: broken},
		{Name: "secure", Store: durable},
	}, &fakeProbe{idErr: ErrProbeUnavailable}, log)

	id, err := r.GetOrCreateDeviceID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hw-999", id)
}

func TestTiers_LookupOrderAndBackfill(t *testing.T) {
	log := logger.NewZerologLogger(logger.TestConfig())
	fast := storage.NewMemoryStorage(log)
	slow := storage.NewMemoryStorage(log)
	tiers := []Tier{{Name: "fast", Store: fast}, {Name: "slow", Store: slow}}
	ctx := context.Background()

	_, _, err := lookup(ctx, tiers, "k", log)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, slow.Put(ctx, "k", "v"))
	value, hit, err := lookup(ctx, tiers, "k", log)
	require.NoError(t, err)
	assert.Equal(t, "v", value)
	assert.Equal(t, 1, hit)

	backfill(ctx, tiers, hit, "k", value, log)
	cached, err := fast.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", cached)

	// Fast tier wins on the next lookup.
	_, hit, err = lookup(ctx, tiers, "k", log)
	require.NoError(t, err)
	assert.Equal(t, 0, hit)
}
