package content

import (
	"sync"

	"github.com/starford/contentstore/internal/models"
)

// FileCache memoizes resolved modules per (path, validator, transformers).
// Entries live until their source path is invalidated.
type FileCache struct {
	mu      sync.RWMutex
	entries map[string]fileEntry
	epoch   uint64
	gens    map[string]uint64
}

type fileEntry struct {
	module *models.Module
	path   string
}

// fileGen identifies the state of one path's cache slot. A resolution that
// started under an older fileGen must not populate the cache.
type fileGen struct {
	epoch uint64
	gen   uint64
}

// NewFileCache creates an empty file cache.
func NewFileCache() *FileCache {
	return &FileCache{
		entries: make(map[string]fileEntry),
		gens:    make(map[string]uint64),
	}
}

// Get returns the module cached under key.
func (c *FileCache) Get(key string) (*models.Module, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.module, ok
}

// Len returns the number of cached modules.
func (c *FileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Invalidate drops every entry whose source path equals path and returns how
// many were removed. An empty path drops everything.
func (c *FileCache) Invalidate(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if path == "" {
		n := len(c.entries)
		c.entries = make(map[string]fileEntry)
		c.gens = make(map[string]uint64)
		c.epoch++
		return n
	}

	c.gens[path]++
	removed := 0
	for key, e := range c.entries {
		if e.path == path {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *FileCache) generation(path string) fileGen {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fileGen{epoch: c.epoch, gen: c.gens[path]}
}

// put stores m unless path was invalidated since g was taken.
func (c *FileCache) put(key, path string, m *models.Module, g fileGen) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != g.epoch || c.gens[path] != g.gen {
		return false
	}
	c.entries[key] = fileEntry{module: m, path: path}
	return true
}

// QueryCache memoizes fully resolved collections per query descriptor.
// Any invalidation clears it entirely.
type QueryCache struct {
	mu      sync.RWMutex
	entries map[string]*models.Collection
	gen     uint64
}

// NewQueryCache creates an empty query cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{entries: make(map[string]*models.Collection)}
}

// Get returns the collection cached under key.
func (c *QueryCache) Get(key string) (*models.Collection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	coll, ok := c.entries[key]
	return coll, ok
}

// Len returns the number of cached collections.
func (c *QueryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Clear drops every cached collection.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*models.Collection)
	c.gen++
}

func (c *QueryCache) generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

func (c *QueryCache) put(key string, coll *models.Collection, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.entries[key] = coll
	return true
}
