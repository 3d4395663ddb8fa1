// Package cache manages named on-disk cache regions shared by the orchestrator and workers.
//
// Layout:
//
//	<cache dir>/
//	  app/       foundational: configuration fingerprint
//	  baker/     foundational: bake records and backups
//	  pages/     parsed page data
//	  renders/   rendered page bodies keyed by content fingerprint
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
)

// Well-known region names. App and Baker survive cache invalidation.
const (
	App     = "app"
	Baker   = "baker"
	Pages   = "pages"
	Renders = "renders"
)

// Foundational lists the regions preserved by a full invalidation.
var Foundational = []string{App, Baker}

// Cache is a set of named regions rooted at one directory.
type Cache struct {
	baseDir string
	mu      sync.Mutex
	regions map[string]*Region
}

// New returns a cache rooted at baseDir. Directories are created lazily.
func New(baseDir string) *Cache {
	return &Cache{baseDir: baseDir, regions: make(map[string]*Region)}
}

// Dir returns the cache root.
func (c *Cache) Dir() string { return c.baseDir }

// GetCache returns the region called name, creating its directory if needed.
func (c *Cache) GetCache(name string) (*Region, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.regions[name]; ok {
		return r, nil
	}
	dir := filepath.Join(c.baseDir, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryCache, "create cache region").
			WithContext("region", name).Build()
	}
	r := &Region{name: name, dir: dir}
	c.regions[name] = r
	return r, nil
}

// ClearCaches wipes every region on disk except the named ones.
func (c *Cache) ClearCaches(except ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache dir: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || slices.Contains(except, e.Name()) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.baseDir, e.Name())); err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryCache, "clear cache region").
				WithContext("region", e.Name()).Build()
		}
		delete(c.regions, e.Name())
	}
	return nil
}

// Region is one named cache directory.
type Region struct {
	name string
	dir  string
}

func (r *Region) Name() string { return r.name }
func (r *Region) Dir() string  { return r.dir }

// GetCachePath returns the filesystem path for key inside the region.
func (r *Region) GetCachePath(key string) string {
	return filepath.Join(r.dir, filepath.FromSlash(key))
}

// Has reports whether key exists in the region.
func (r *Region) Has(key string) bool {
	_, err := os.Stat(r.GetCachePath(key))
	return err == nil
}

// Read returns the bytes stored under key.
func (r *Region) Read(key string) ([]byte, error) {
	// #nosec G304 -- key is produced by this process
	return os.ReadFile(r.GetCachePath(key))
}

// Write stores data under key, creating parent directories.
func (r *Region) Write(key string, data []byte) error {
	path := r.GetCachePath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create cache subdir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Clear removes everything stored in the region but keeps the directory.
func (r *Region) Clear() error {
	if err := os.RemoveAll(r.dir); err != nil {
		return fmt.Errorf("clear region %s: %w", r.name, err)
	}
	return os.MkdirAll(r.dir, 0o750)
}
