package whitelist

import (
	"slices"
	"sync"
)

// Cache hands out an Index for the current whitelist snapshot and rebuilds it
// only when the snapshot changes.
type Cache struct {
	mu       sync.Mutex
	opts     Options
	snapshot []string
	index    *Index
	builds   uint64
}

// NewCache returns an empty Cache that builds indexes with opts.
func NewCache(opts Options) *Cache {
	return &Cache{opts: opts}
}

// For returns the Index compiled from entries, reusing the previous one when
// entries are unchanged.
func (c *Cache) For(entries []string) *Index {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index != nil && slices.Equal(c.snapshot, entries) {
		return c.index
	}
	c.snapshot = slices.Clone(entries)
	c.index = NewIndex(c.snapshot, c.opts)
	c.builds++
	return c.index
}

// Builds reports how many indexes have been compiled.
func (c *Cache) Builds() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}

// Invalidate drops the current index so the next For call rebuilds.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.index = nil
	c.snapshot = nil
	c.mu.Unlock()
}
