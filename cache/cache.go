// Package cache defines the reclaimable content cells used by archmod modules.
//
// A Cache holds decompressed entry content under string keys. Any cell may
// disappear at any time (garbage collection, eviction, pruning, expiry), so
// callers treat every Get as a snapshot and recompute on a miss. While a cell
// is live it returns exactly the bytes that were stored.
//
// Implementations live in subpackages:
//   - weakref: cells reclaimed by the Go garbage collector
//   - lru: cells bounded by entry count, byte budget and optional TTL
//   - disk: cells persisted under a directory with a byte budget
package cache

// Cache stores reclaimable content cells.
//
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the content stored under key.
	// Returns nil, false if the cell is absent or has been reclaimed.
	// The returned slice must not be modified.
	Get(key string) ([]byte, bool)

	// Put stores content under key, replacing any previous cell.
	// Implementations may decline to store content (for example when it
	// exceeds a size budget); that is not an error.
	Put(key string, content []byte) error

	// Delete removes the cell for key.
	// Missing keys are a no-op.
	Delete(key string) error

	// Len returns the number of cells currently tracked.
	Len() int

	// SizeBytes returns the total content size of tracked cells.
	SizeBytes() int64
}

// Pruner is implemented by caches that can shrink to a byte target on demand.
type Pruner interface {
	// Prune removes cells until the cache is at or below targetBytes.
	// Returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}
