package storage

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/armon/go-radix"

	log "github.com/coopsys/sessionkit/logger"
)

// Verify interfaces are satisfied
var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage is an in-memory only Storage. It serves as the
// process-lifetime tier and, with the failure toggles below, as a
// stand-in secure backend in tests.
type MemoryStorage struct {
	sync.RWMutex
	root   *radix.Tree
	logger log.Logger

	failGet    *uint32
	failPut    *uint32
	failDelete *uint32
}

// NewMemoryStorage constructs a new in-memory storage
func NewMemoryStorage(logger log.Logger) *MemoryStorage {
	return &MemoryStorage{
		root:       radix.New(),
		logger:     logger,
		failGet:    new(uint32),
		failPut:    new(uint32),
		failDelete: new(uint32),
	}
}

// Put is used to insert or update an entry
func (m *MemoryStorage) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if atomic.LoadUint32(m.failPut) != 0 {
		return ErrUnavailable
	}

	m.Lock()
	defer m.Unlock()

	m.root.Insert(key, value)
	return nil
}

// Get is used to fetch an entry
func (m *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if atomic.LoadUint32(m.failGet) != 0 {
		return "", ErrUnavailable
	}

	m.RLock()
	defer m.RUnlock()

	if raw, ok := m.root.Get(key); ok {
		return raw.(string), nil
	}
	return "", ErrNotFound
}

// Delete is used to delete an entry. Deleting an absent key is a no-op.
func (m *MemoryStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if atomic.LoadUint32(m.failDelete) != 0 {
		return ErrUnavailable
	}

	m.Lock()
	defer m.Unlock()

	m.root.Delete(key)
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStorage) Len() int {
	m.RLock()
	defer m.RUnlock()
	return m.root.Len()
}

// FailGet forces Get operations to return ErrUnavailable.
func (m *MemoryStorage) FailGet(fail bool) {
	var val uint32
	if fail {
		val = 1
	}
	atomic.StoreUint32(m.failGet, val)
}

// FailPut forces Put operations to return ErrUnavailable.
func (m *MemoryStorage) FailPut(fail bool) {
	var val uint32
	if fail {
		val = 1
	}
	atomic.StoreUint32(m.failPut, val)
}

// FailDelete forces Delete operations to return ErrUnavailable.
func (m *MemoryStorage) FailDelete(fail bool) {
	var val uint32
	if fail {
		val = 1
	}
	atomic.StoreUint32(m.failDelete, val)
}
