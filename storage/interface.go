package storage

import "context"

// Storage is a flat key/value store. Implementations back the tiers of
// the credential store and the device identity resolver: a process
// cache, a fast unencrypted file cache, and an encrypted durable store.
//
// Get returns ErrNotFound when the key is absent. Delete of an absent
// key is a no-op. Implementations must be safe for concurrent use.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
}

// Closer is implemented by stores holding resources that outlive a
// single call (file handles, cache goroutines).
type Closer interface {
	Close() error
}
