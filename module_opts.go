package archmod

import (
	"log/slog"

	"github.com/meigma/archmod/cache"
)

// DefaultPrefetchWorkers is the number of entries Prefetch decompresses concurrently.
const DefaultPrefetchWorkers = 4

// Option configures a Module.
type Option func(*Module)

// WithCache sets the cache holding decompressed content.
//
// The default is a per-module weak-reference cache (cache/weakref). A cache
// may be shared between modules; keys include the module location.
func WithCache(c cache.Cache) Option {
	return func(m *Module) {
		m.cache = c
	}
}

// WithLogger sets the logger used for cache and read diagnostics.
// A nil logger discards output.
func WithLogger(l *slog.Logger) Option {
	return func(m *Module) {
		m.logger = l
	}
}

// WithChunkSize sets the read size used when decompressing content.
// Values <= 0 use DefaultChunkSize.
func WithChunkSize(n int) Option {
	return func(m *Module) {
		if n <= 0 {
			n = DefaultChunkSize
		}
		m.chunkSize = n
	}
}

// WithPrefetchWorkers sets how many entries Prefetch decompresses concurrently.
// Values <= 0 use DefaultPrefetchWorkers.
func WithPrefetchWorkers(n int) Option {
	return func(m *Module) {
		if n <= 0 {
			n = DefaultPrefetchWorkers
		}
		m.prefetchWorkers = n
	}
}
