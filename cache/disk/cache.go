// Package disk provides a disk-backed cache implementation.
//
// Each cell is a file named after the sha256 digest of its key. The file
// starts with a header line holding the digest of the content, which Get
// verifies before returning anything, so a torn or tampered cell reads as a
// miss rather than as wrong bytes.
package disk

import (
	"bufio"
	"bytes"
	_ "crypto/sha256" // registers the digest algorithm
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/archmod/cache"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
	defaultFilePerm       = 0o600
)

var (
	_ cache.Cache  = (*Cache)(nil)
	_ cache.Pruner = (*Cache)(nil)
)

// errCorrupt marks a cell whose header or content digest does not verify.
var errCorrupt = errors.New("disk cache: corrupt cell")

// Cache implements cache.Cache using the local filesystem.
// Files are stored in a directory hierarchy with optional sharding by digest prefix.
// The cache is safe for concurrent use.
type Cache struct {
	dir            string       // root directory for cached files
	shardPrefixLen int          // number of hex chars for subdirectory sharding
	dirPerm        os.FileMode  // permissions for created directories
	maxBytes       int64        // maximum cache size (0 = unlimited)
	bytes          atomic.Int64 // current total size of cached files
	pruneMu        sync.Mutex   // serializes prune operations
}

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New creates a disk-backed cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Get returns the verified content stored under key.
// Corrupt cells are removed and reported as a miss.
func (c *Cache) Get(key string) ([]byte, bool) {
	path := c.path(key)
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a digest, not user input
	if err != nil {
		return nil, false
	}
	content, err := decodeCell(data)
	if err != nil {
		_ = c.Delete(key) //nolint:errcheck // best-effort cleanup of a corrupt cell
		return nil, false
	}
	return content, true
}

// Put writes content under key atomically, replacing any previous cell.
// Content that cannot fit in the byte budget is not stored.
func (c *Cache) Put(key string, content []byte) error {
	path := c.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	w := bufio.NewWriter(tmp)
	_, err = fmt.Fprintf(w, "%s\n", digest.FromBytes(content))
	if err == nil {
		_, err = w.Write(content)
	}
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, defaultFilePerm); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	written := info.Size()

	var prevSize int64
	if prev, statErr := os.Stat(path); statErr == nil {
		prevSize = prev.Size()
	}

	if ok, err := c.ensureCapacity(written - prevSize); err != nil {
		_ = os.Remove(tmpPath)
		return err
	} else if !ok {
		_ = os.Remove(tmpPath)
		return nil
	}

	// The prune above may have removed the previous cell.
	prevSize = 0
	if prev, statErr := os.Stat(path); statErr == nil {
		prevSize = prev.Size()
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	c.bytes.Add(written - prevSize)
	return nil
}

// Delete removes the cell for key.
func (c *Cache) Delete(key string) error {
	path := c.path(key)
	info, statErr := os.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return nil
		}
		return statErr
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	c.bytes.Add(-info.Size())
	return nil
}

// Len returns the number of cell files on disk.
func (c *Cache) Len() int {
	n, err := dirCount(c.dir)
	if err != nil {
		return 0
	}
	return n
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current on-disk size of all cells, headers included.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes the oldest cells until the cache is at or below targetBytes.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) path(key string) string {
	hexKey := digest.FromString(key).Encoded()
	if c.shardPrefixLen <= 0 {
		return filepath.Join(c.dir, hexKey)
	}
	prefixLen := min(c.shardPrefixLen, len(hexKey))
	return filepath.Join(c.dir, hexKey[:prefixLen], hexKey)
}

func (c *Cache) ensureCapacity(need int64) (bool, error) {
	if c.maxBytes <= 0 || need <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}

// decodeCell splits a cell file into header digest and content and verifies them.
func decodeCell(data []byte) ([]byte, error) {
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil, errCorrupt
	}
	want, err := digest.Parse(string(data[:idx]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errCorrupt, err)
	}
	content := data[idx+1:]
	if !want.Algorithm().Available() || want.Algorithm().FromBytes(content) != want {
		return nil, errCorrupt
	}
	return content, nil
}
