package helper

import (
	"crypto/rand"

	"github.com/oklog/ulid"
)

// GenerateULID returns a lexicographically sortable identifier derived
// from the current clock and crypto/rand entropy.
func GenerateULID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// GenerateRequestID returns an identifier suitable for stamping
// outgoing requests.
func GenerateRequestID() string {
	return GenerateULID()
}
