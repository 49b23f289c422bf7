package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	log "github.com/coopsys/sessionkit/logger"
)

var _ Storage = (*FileCache)(nil)

// FileCache is an unencrypted file-backed Storage for low-sensitivity
// values (tenant context, device identity mirror). It exists so cold
// starts do not pay an encrypted-store read for values that are not
// secret. Every write is flushed to disk before returning.
type FileCache struct {
	mu     sync.RWMutex
	path   string
	data   map[string]string
	logger log.Logger
}

// NewFileCache opens (or creates) the cache file at path.
func NewFileCache(path string, logger log.Logger) (*FileCache, error) {
	fc := &FileCache{
		path:   path,
		data:   make(map[string]string),
		logger: logger,
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// First run, nothing cached yet.
	case err != nil:
		return nil, fmt.Errorf("failed to open cache file: %w", err)
	default:
		if err := json.Unmarshal(raw, &fc.data); err != nil {
			// A corrupt cache is not fatal: every value it held can
			// be re-derived from the durable tier or the probe.
			logger.Warn("discarding unreadable cache file",
				log.String("path", path), log.Err(err))
			fc.data = make(map[string]string)
		}
	}

	return fc, nil
}

func (fc *FileCache) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	fc.mu.RLock()
	defer fc.mu.RUnlock()

	value, ok := fc.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

func (fc *FileCache) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.data[key] = value
	return fc.persistLocked()
}

func (fc *FileCache) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	if _, ok := fc.data[key]; !ok {
		return nil
	}
	delete(fc.data, key)
	return fc.persistLocked()
}

// persistLocked rewrites the cache file. Callers hold fc.mu.
func (fc *FileCache) persistLocked() error {
	raw, err := json.Marshal(fc.data)
	if err != nil {
		return err
	}
	return writeFileAtomic(fc.path, raw, 0o644)
}

// writeFileAtomic writes via a temp file and rename so a crash cannot
// leave a half-written store on disk.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, path)
}
