package archmod

import (
	"bytes"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"reflect"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/archmod/cache"
	"github.com/meigma/archmod/cache/weakref"
)

// DefaultChunkSize is the read size used when decompressing entry content.
const DefaultChunkSize = 1024

// Module provides enumeration of and cached content access to the entries of an archive.
//
// Module is safe for concurrent use. Concurrent Content calls for different
// entries decompress independently; concurrent calls for the same entry
// share one decompression.
type Module struct {
	archive         Archive
	location        string
	keyPrefix       string
	hash            uint64
	cache           cache.Cache
	group           singleflight.Group // zero value is valid
	chunkSize       int
	prefetchWorkers int
	logger          *slog.Logger

	hits          atomic.Int64
	misses        atomic.Int64
	shared        atomic.Int64
	decompressed  atomic.Int64
	storeFailures atomic.Int64
}

// Stats is a snapshot of a Module's cache activity.
type Stats struct {
	// Hits counts Content calls served from a live cell.
	Hits int64

	// Misses counts decompressions performed.
	Misses int64

	// Shared counts Content calls that waited on another caller's decompression.
	Shared int64

	// DecompressedBytes is the total size of content produced by decompression.
	DecompressedBytes int64

	// StoreFailures counts cache writes that failed.
	StoreFailures int64

	// CachedEntries and CachedBytes describe the cache at snapshot time.
	CachedEntries int
	CachedBytes   int64
}

// log returns the logger, falling back to a discard logger if nil.
func (m *Module) log() *slog.Logger {
	if m.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.logger
}

// Open creates a Module around an already-open archive.
//
// Open does not read any entry content. It returns ErrInvalidArgument if a
// is nil or reports an empty location. The caller keeps ownership of a and
// must keep it open for the Module's lifetime.
func Open(a Archive, opts ...Option) (*Module, error) {
	if isNil(a) {
		return nil, fmt.Errorf("%w: archive is nil", ErrInvalidArgument)
	}
	location := a.Location()
	if location == "" {
		return nil, fmt.Errorf("%w: archive location is empty", ErrInvalidArgument)
	}

	m := &Module{
		archive:         a,
		location:        location,
		keyPrefix:       location,
		hash:            xxhash.Sum64String(location),
		chunkSize:       DefaultChunkSize,
		prefetchWorkers: DefaultPrefetchWorkers,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cache == nil {
		m.cache = weakref.New()
	}
	if fp, ok := a.(Fingerprinter); ok {
		if f := fp.Fingerprint(); f != "" {
			m.keyPrefix = location + "@" + f
		}
	}
	return m, nil
}

// isNil reports whether a is nil or an interface holding a nil pointer.
func isNil(a Archive) bool {
	if a == nil {
		return true
	}
	v := reflect.ValueOf(a)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}

// Location returns the canonical location of the underlying archive.
func (m *Module) Location() string {
	return m.location
}

// Key returns the identity key of the module, suitable as a map key.
// Equal modules have equal keys.
func (m *Module) Key() string {
	return m.location
}

// Hash returns a hash of the module's location.
// Equal modules have equal hashes.
func (m *Module) Hash() uint64 {
	return m.hash
}

// Equal reports whether m and other wrap archives at the same canonical location.
func (m *Module) Equal(other *Module) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.location == other.location
}

// String returns a description of the module.
func (m *Module) String() string {
	return "archmod.Module:" + m.location
}

// Archive returns the wrapped archive handle.
func (m *Module) Archive() Archive {
	return m.archive
}

// Entries enumerates the entries of the archive.
//
// Every call re-enumerates the archive handle. Each distinct name is
// yielded once per enumeration; no ordering is guaranteed.
func (m *Module) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		seen := make(map[string]struct{})
		for name := range m.archive.Names() {
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			if !yield(Entry{name: name, module: m}) {
				return
			}
		}
	}
}

// EntryNames returns the names yielded by Entries.
func (m *Module) EntryNames() []string {
	var names []string
	for e := range m.Entries() {
		names = append(names, e.Name())
	}
	return names
}

// Content returns the decompressed content of the named entry.
//
// A live cached cell is returned without decompressing. Otherwise the entry
// is read from the archive in chunks until end of stream, stored in the
// cache, and returned. Read failures return an *UnreachableError and leave
// the cache untouched. The returned slice may be shared with the cache and
// other callers and must not be modified.
func (m *Module) Content(name string) ([]byte, error) {
	key := m.cacheKey(name)
	if content, ok := m.cache.Get(key); ok {
		m.hits.Add(1)
		m.log().Debug("content cache hit", "module", m.location, "entry", name)
		return content, nil
	}

	m.log().Debug("content cache miss", "module", m.location, "entry", name)
	var ran bool
	result, err, shared := m.group.Do(key, func() (any, error) {
		ran = true
		// Double-check after acquiring singleflight
		if content, ok := m.cache.Get(key); ok {
			m.hits.Add(1)
			return content, nil
		}

		m.misses.Add(1)
		content, err := m.decompress(name)
		if err != nil {
			return nil, err
		}
		if err := m.cache.Put(key, content); err != nil {
			m.storeFailures.Add(1)
			m.log().Warn("content cache store failed", "module", m.location, "entry", name, "error", err)
		}
		return content, nil
	})
	// Do reports shared to the caller that ran the flight as well.
	if shared && !ran {
		m.shared.Add(1)
	}
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil //nolint:forcetypeassert // the flight only returns []byte
}

// ReadEntry returns the content of e.
// It returns an *UnreachableError if e was not enumerated from a module equal to m.
func (m *Module) ReadEntry(e Entry) ([]byte, error) {
	if !m.Equal(e.module) {
		return nil, &UnreachableError{Location: m.location, Entry: e.name, Err: errForeignEntry}
	}
	return m.Content(e.name)
}

// Forget drops the cached cell for the named entry, if any.
// The next Content call for the entry decompresses it again.
func (m *Module) Forget(name string) error {
	return m.cache.Delete(m.cacheKey(name))
}

// Stats returns a snapshot of cache activity.
func (m *Module) Stats() Stats {
	return Stats{
		Hits:              m.hits.Load(),
		Misses:            m.misses.Load(),
		Shared:            m.shared.Load(),
		DecompressedBytes: m.decompressed.Load(),
		StoreFailures:     m.storeFailures.Load(),
		CachedEntries:     m.cache.Len(),
		CachedBytes:       m.cache.SizeBytes(),
	}
}

func (m *Module) cacheKey(name string) string {
	return m.keyPrefix + "!" + name
}

// decompress reads the full content of name from the archive in chunkSize reads.
func (m *Module) decompress(name string) ([]byte, error) {
	rc, err := m.archive.Open(name)
	if err != nil {
		return nil, m.unreachable(name, err)
	}

	var buf bytes.Buffer
	chunk := make([]byte, m.chunkSize)
	for {
		n, err := rc.Read(chunk)
		buf.Write(chunk[:n])
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = rc.Close()
			return nil, m.unreachable(name, err)
		}
	}
	if err := rc.Close(); err != nil {
		return nil, m.unreachable(name, err)
	}

	m.decompressed.Add(int64(buf.Len()))
	return buf.Bytes(), nil
}

func (m *Module) unreachable(name string, err error) error {
	m.log().Error("content read failed", "module", m.location, "entry", name, "error", err)
	return &UnreachableError{Location: m.location, Entry: name, Err: err}
}
