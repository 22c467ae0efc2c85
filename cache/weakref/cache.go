// Package weakref provides a cache whose cells are reclaimed by the garbage collector.
//
// A cell stays live while any caller still references the content it returned
// (or the slice passed to Put). Once the content becomes unreachable the next
// collection may drop it, and the following Get reports a miss. The map of
// cells is swept of reclaimed slots as it grows, so it never outlives the
// content it describes by more than one sweep.
package weakref

import (
	"sync"
	"unsafe"
	"weak"

	"github.com/meigma/archmod/cache"
)

var _ cache.Cache = (*Cache)(nil)

type slot struct {
	ptr  weak.Pointer[byte]
	size int
}

// live returns the content if the slot has not been reclaimed.
func (s slot) live() ([]byte, bool) {
	if s.size == 0 {
		return []byte{}, true
	}
	p := s.ptr.Value()
	if p == nil {
		return nil, false
	}
	return unsafe.Slice(p, s.size), true
}

// Cache implements cache.Cache with weak references.
// The cache is safe for concurrent use.
type Cache struct {
	mu          sync.Mutex
	slots       map[string]slot
	putsToSweep int
}

// New creates an empty weak-reference cache.
func New() *Cache {
	return &Cache{slots: make(map[string]slot)}
}

// Get returns the content for key if it has not been reclaimed.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok {
		return nil, false
	}
	content, ok := s.live()
	if !ok {
		delete(c.slots, key)
		return nil, false
	}
	return content, true
}

// Put stores a weak reference to content under key.
// The content must not be modified after Put.
func (c *Cache) Put(key string, content []byte) error {
	s := slot{size: len(content)}
	if len(content) > 0 {
		s.ptr = weak.Make(&content[0])
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.slots[key] = s
	c.putsToSweep++
	if c.putsToSweep >= len(c.slots) {
		c.sweepLocked()
	}
	return nil
}

// Delete drops the cell for key.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, key)
	return nil
}

// Len returns the number of live cells.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	return len(c.slots)
}

// SizeBytes returns the total size of live cells.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	var total int64
	for _, s := range c.slots {
		total += int64(s.size)
	}
	return total
}

// sweepLocked removes reclaimed slots. c.mu must be held.
func (c *Cache) sweepLocked() {
	for key, s := range c.slots {
		if s.size > 0 && s.ptr.Value() == nil {
			delete(c.slots, key)
		}
	}
	c.putsToSweep = 0
}
