// Package lru provides a bounded in-memory cache with least-recently-used eviction.
//
// Cells are dropped when the entry count or byte budget is exceeded, or when
// an optional time-to-live elapses. Expired cells are dropped lazily on
// access; the cache runs no background goroutines.
package lru

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/meigma/archmod/cache"
)

const (
	// DefaultMaxEntries is the default maximum number of cells.
	DefaultMaxEntries = 4096

	// DefaultMaxBytes is the default byte budget (256MB).
	DefaultMaxBytes = 256 << 20
)

var _ cache.Cache = (*Cache)(nil)

// Cache implements cache.Cache backed by a simplelru.LRU.
// The cache is safe for concurrent use.
type Cache struct {
	mu         sync.Mutex // guards lru, which is not safe for concurrent use
	lru        *simplelru.LRU[string, cell]
	maxEntries int
	maxBytes   int64
	ttl        time.Duration
	now        func() time.Time
	bytes      atomic.Int64
	evictions  atomic.Int64
}

// cell is a cached value. A zero expires never expires.
type cell struct {
	content []byte
	expires time.Time
}

func (c cell) expired(now time.Time) bool {
	return !c.expires.IsZero() && !now.Before(c.expires)
}

// Option configures an LRU cache.
type Option func(*Cache)

// WithMaxEntries sets the maximum number of cells.
// Use 0 to disable the limit.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithMaxBytes sets the byte budget across all cells.
// Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// WithTTL expires cells after d. Use 0 to keep cells until evicted.
func WithTTL(d time.Duration) Option {
	return func(c *Cache) {
		c.ttl = d
	}
}

// New creates an LRU cache.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{
		maxEntries: DefaultMaxEntries,
		maxBytes:   DefaultMaxBytes,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxEntries < 0 {
		return nil, errors.New("max entries must be >= 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if c.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	size := c.maxEntries
	if size == 0 {
		size = math.MaxInt32
	}
	l, err := simplelru.NewLRU(size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// onEvict runs with mu held and must not call back into the cache.
func (c *Cache) onEvict(_ string, v cell) {
	c.bytes.Add(-int64(len(v.content)))
	c.evictions.Add(1)
}

// Get returns the content for key and marks it recently used.
// An expired cell is dropped and reported as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	if v.expired(c.now()) {
		c.lru.Remove(key)
		return nil, false
	}
	return v.content, true
}

// Put stores content under key, evicting older cells to stay within budget.
// Content larger than the byte budget is not stored.
func (c *Cache) Put(key string, content []byte) error {
	size := int64(len(content))

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.dropExpired(now)

	// Dropping the old cell releases its bytes through onEvict; a replaced
	// cell is not an eviction.
	if c.lru.Remove(key) {
		c.evictions.Add(-1)
	}
	if c.maxBytes > 0 && size > c.maxBytes {
		return nil
	}
	v := cell{content: content}
	if c.ttl > 0 {
		v.expires = now.Add(c.ttl)
	}
	c.lru.Add(key, v)
	c.bytes.Add(size)

	for c.maxBytes > 0 && c.bytes.Load() > c.maxBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	return nil
}

// dropExpired removes expired cells from the cold end of the list and stops
// at the first live one. Expired cells elsewhere are dropped when read.
func (c *Cache) dropExpired(now time.Time) {
	if c.ttl == 0 {
		return
	}
	for {
		_, v, ok := c.lru.GetOldest()
		if !ok || !v.expired(now) {
			return
		}
		c.lru.RemoveOldest()
	}
}

// Delete removes the cell for key.
func (c *Cache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A deleted cell is not an eviction.
	if c.lru.Remove(key) {
		c.evictions.Add(-1)
	}
	return nil
}

// Len returns the number of cells, including expired cells not yet dropped.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// SizeBytes returns the total size of cached content.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// MaxBytes returns the configured byte budget (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// Evictions returns the number of cells dropped for budget or expiry since creation.
func (c *Cache) Evictions() int64 {
	return c.evictions.Load()
}

// Prune evicts least recently used cells until the cache is at or below targetBytes.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.bytes.Load()
	for c.bytes.Load() > targetBytes {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			break
		}
	}
	return start - c.bytes.Load(), nil
}

// Purge drops every cell.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
	c.bytes.Store(0)
}
