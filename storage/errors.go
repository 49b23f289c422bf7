package storage

import "errors"

var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("storage: key not found")

	// ErrUnavailable is returned when the backing store cannot be
	// reached or decrypted. Callers owning credentials degrade this
	// to "absent" rather than surfacing it.
	ErrUnavailable = errors.New("storage: backend unavailable")
)
