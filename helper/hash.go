package helper

import (
	"crypto/sha256"
	"encoding/hex"
)

func Get8BytesHash(value string) string {
	h := sha256.Sum256([]byte(value))

	short := h[:8]

	return hex.EncodeToString(short)
}
