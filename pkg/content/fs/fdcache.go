package fs

import (
	"container/list"
	"fmt"
	"os"
	"sync"

	"github.com/marmos91/godfs/pkg/metadata"
)

// FDCache keeps recently used content files open, evicting the least
// recently used descriptor once maxSize is reached. It also hands out a
// per-content mutex so writes to the same content serialize.
type FDCache struct {
	maxSize   int
	mu        sync.Mutex
	cache     map[metadata.ContentID]*list.Element
	lru       *list.List
	fileLocks sync.Map
}

type cacheEntry struct {
	id   metadata.ContentID
	file *os.File
}

func NewFDCache(maxSize int) *FDCache {
	if maxSize < 1 {
		maxSize = 256
	}
	return &FDCache{
		maxSize: maxSize,
		cache:   make(map[metadata.ContentID]*list.Element),
		lru:     list.New(),
	}
}

// Get returns the cached descriptor for id, marking it most recently used.
func (c *FDCache) Get(id metadata.ContentID) (*os.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.cache[id]
	if !exists {
		return nil, false
	}

	c.lru.MoveToFront(elem)
	return elem.Value.(*cacheEntry).file, true
}

// Put caches file for id. A different descriptor already cached for id is
// closed.
func (c *FDCache) Put(id metadata.ContentID, file *os.File) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[id]; exists {
		c.lru.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		if entry.file != file {
			_ = entry.file.Close()
			entry.file = file
		}
		return nil
	}

	if c.lru.Len() >= c.maxSize {
		if err := c.evictLRU(); err != nil {
			return fmt.Errorf("evict LRU: %w", err)
		}
	}

	elem := c.lru.PushFront(&cacheEntry{id: id, file: file})
	c.cache[id] = elem
	return nil
}

// Remove closes and forgets the descriptor for id.
func (c *FDCache) Remove(id metadata.ContentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.cache[id]
	if !exists {
		return nil
	}

	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.cache, id)

	if err := entry.file.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

// Close closes every cached descriptor.
func (c *FDCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for c.lru.Len() > 0 {
		elem := c.lru.Back()
		entry := elem.Value.(*cacheEntry)

		if err := entry.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}

		c.lru.Remove(elem)
		delete(c.cache, entry.id)
	}
	return firstErr
}

func (c *FDCache) evictLRU() error {
	elem := c.lru.Back()
	if elem == nil {
		return nil
	}

	entry := elem.Value.(*cacheEntry)
	c.lru.Remove(elem)
	delete(c.cache, entry.id)

	if err := entry.file.Close(); err != nil {
		return fmt.Errorf("close evicted file %s: %w", entry.file.Name(), err)
	}
	return nil
}

// LockFile serializes access to one content file.
func (c *FDCache) LockFile(id metadata.ContentID) {
	value, _ := c.fileLocks.LoadOrStore(id, &sync.Mutex{})
	value.(*sync.Mutex).Lock()
}

func (c *FDCache) UnlockFile(id metadata.ContentID) {
	if value, exists := c.fileLocks.Load(id); exists {
		value.(*sync.Mutex).Unlock()
	}
}

// Stats returns the number of open descriptors and the cache limit.
func (c *FDCache) Stats() (size int, maxSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len(), c.maxSize
}
