// Package cache holds the shared image cache consulted by the download
// pipeline before hitting the network, plus the index of committed chapter
// directories.
package cache

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vaginadesolator/tachiyomi/internal/download"
)

// Cache is a disk-backed image cache keyed by remote reference. Reads are
// concurrent; an entry is evicted by the single pipeline that consumes it.
type Cache struct {
	dir string
	log *slog.Logger

	mu       sync.RWMutex
	finished map[string]struct{}
}

var _ download.Cache = (*Cache)(nil)

// New creates a cache rooted at dir, creating it if needed.
func New(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache{
		dir:      dir,
		log:      logger.With("component", "cache"),
		finished: make(map[string]struct{}),
	}, nil
}

// key hashes a remote reference into a flat on-disk filename.
func (c *Cache) key(ref string) string {
	sum := md5.Sum([]byte(ref))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) path(ref string) string {
	return filepath.Join(c.dir, c.key(ref))
}

// Has reports whether an image for ref is cached.
func (c *Cache) Has(ref string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, err := os.Stat(c.path(ref))
	return err == nil && !info.IsDir()
}

// Get returns the local path of a cached image.
func (c *Cache) Get(ref string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.path(ref)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Put stores image bytes for ref, overwriting any previous entry.
func (c *Cache) Put(ref string, r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.path(ref)
	tmp := p + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create cache file: %w", err)
	}
	_, err = io.Copy(out, r)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize cache file: %w", err)
	}
	return nil
}

// Remove evicts the entry for ref. Missing entries are not an error.
func (c *Cache) Remove(ref string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.Remove(c.path(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("evict cache entry: %w", err)
	}
	return nil
}

// RegisterFinished records a committed chapter directory in the index.
func (c *Cache) RegisterFinished(dirName, rootDir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished[filepath.Join(rootDir, dirName)] = struct{}{}
}

// IsFinished reports whether a chapter directory was registered as
// committed during this process's lifetime.
func (c *Cache) IsFinished(dirName, rootDir string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.finished[filepath.Join(rootDir, dirName)]
	return ok
}
