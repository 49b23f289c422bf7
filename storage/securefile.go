package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"

	"golang.org/x/crypto/hkdf"

	log "github.com/coopsys/sessionkit/logger"
)

var _ Storage = (*SecureFile)(nil)

const secureKeySize = 32

// SecureFile is the encrypted durable Storage tier: the authoritative
// home of the auth token and the device identity. Values are sealed
// with AES-256-GCM under a key derived (HKDF-SHA256) from a per-device
// master key file created on first use.
//
// A store that cannot be opened or decrypted reports ErrUnavailable on
// reads; the credential layer degrades that to "logged out".
type SecureFile struct {
	mu     sync.Mutex
	path   string
	aead   cipher.AEAD
	data   map[string]string // key -> base64(nonce || ciphertext)
	logger log.Logger
}

// NewSecureFile opens the encrypted store at path, creating the master
// key at keyPath on first use.
func NewSecureFile(path, keyPath string, logger log.Logger) (*SecureFile, error) {
	master, err := loadOrCreateMasterKey(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}

	aead, err := deriveAEAD(master)
	if err != nil {
		return nil, err
	}

	sf := &SecureFile{
		path:   path,
		aead:   aead,
		data:   make(map[string]string),
		logger: logger,
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run.
	case err != nil:
		return nil, fmt.Errorf("failed to open secure store: %w", err)
	default:
		if err := json.Unmarshal(raw, &sf.data); err != nil {
			return nil, fmt.Errorf("secure store is corrupt: %w", err)
		}
	}

	return sf, nil
}

func (sf *SecureFile) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sf.mu.Lock()
	defer sf.mu.Unlock()

	sealed, ok := sf.data[key]
	if !ok {
		return "", ErrNotFound
	}

	plaintext, err := sf.open(sealed)
	if err != nil {
		sf.logger.Warn("failed to unseal stored value",
			log.String("key", key), log.Err(err))
		return "", ErrUnavailable
	}
	return plaintext, nil
}

func (sf *SecureFile) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sealed, err := sf.seal(value)
	if err != nil {
		return err
	}

	sf.mu.Lock()
	defer sf.mu.Unlock()

	sf.data[key] = sealed
	return sf.persistLocked()
}

func (sf *SecureFile) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	sf.mu.Lock()
	defer sf.mu.Unlock()

	if _, ok := sf.data[key]; !ok {
		return nil
	}
	delete(sf.data, key)
	return sf.persistLocked()
}

func (sf *SecureFile) seal(plaintext string) (string, error) {
	nonce := make([]byte, sf.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := sf.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (sf *SecureFile) open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	if len(raw) < sf.aead.NonceSize() {
		return "", errors.New("sealed value too short")
	}

	nonce, ciphertext := raw[:sf.aead.NonceSize()], raw[sf.aead.NonceSize():]
	plaintext, err := sf.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// persistLocked rewrites the store file. Callers hold sf.mu.
func (sf *SecureFile) persistLocked() error {
	raw, err := json.Marshal(sf.data)
	if err != nil {
		return err
	}
	return writeFileAtomic(sf.path, raw, 0o600)
}

func deriveAEAD(master []byte) (cipher.AEAD, error) {
	kdf := hkdf.New(sha256.New, master, nil, []byte("sessionkit secure storage v1"))
	key := make([]byte, secureKeySize)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func loadOrCreateMasterKey(keyPath string) ([]byte, error) {
	master, err := os.ReadFile(keyPath)
	if err == nil {
		if len(master) != secureKeySize {
			return nil, fmt.Errorf("master key has unexpected size %d", len(master))
		}
		return master, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	master = make([]byte, secureKeySize)
	if _, err := io.ReadFull(rand.Reader, master); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(keyPath, master, 0o600); err != nil {
		return nil, err
	}
	return master, nil
}
