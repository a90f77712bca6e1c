package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// DefaultLockTimeout bounds how long a writer waits for the base-dir lock.
const DefaultLockTimeout = 2 * time.Minute

// Store serializes read-modify-write access to the files under a base dir
// (config.json and context/cache.json). An in-process mutex orders goroutines
// and a flock lock file orders processes sharing the directory.
type Store struct {
	baseDir string
	timeout time.Duration
	mu      sync.Mutex
}

// NewStore creates a Store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{baseDir: baseDir, timeout: DefaultLockTimeout}
}

// BaseDir returns the directory this store manages.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// CachePath returns the context cache file managed by this store.
func (s *Store) CachePath() string {
	return CachePath(s.baseDir)
}

// Load reads the current configuration. It does not take the write lock.
func (s *Store) Load() (*Config, error) {
	return Load(s.baseDir)
}

// WithLock runs fn while holding the base-dir lock.
// fn must not call WithLock again.
func (s *Store) WithLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.baseDir, 0700); err != nil {
		return fmt.Errorf("failed to create base directory: %w", err)
	}

	lock := flock.New(filepath.Join(s.baseDir, ".lock"))
	lockCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, 100*time.Millisecond)
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", s.baseDir, err)
	}
	if !locked {
		return fmt.Errorf("timeout waiting for lock on %s", s.baseDir)
	}
	defer func() { _ = lock.Unlock() }()

	return fn()
}

// Save writes cfg to config.json. Callers that read-modify-write must hold
// the lock via WithLock.
func (s *Store) Save(cfg *Config) error {
	return WriteJSONAtomic(Path(s.baseDir), cfg)
}

// WriteJSONAtomic marshals v with indentation and replaces path atomically
// (temp file in the same directory, then rename).
func WriteJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}

	return nil
}
