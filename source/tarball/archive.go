// Package tarball provides archive handles over tar streams, optionally zstd-compressed.
//
// Tar has no central directory, so the archive is scanned once at open time
// to index entry names. Every Open then decompresses the stream from the
// start and skips forward to the requested entry, which makes repeated reads
// expensive and is exactly the cost a content cache in front of it avoids.
package tarball

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultMaxDecoderMemory is the default maximum zstd decoder memory (256MB).
const DefaultMaxDecoderMemory = 256 << 20

// Archive is a read-only handle over a tar or tar.zst stream.
// Archive is safe for concurrent use.
type Archive struct {
	src              io.ReaderAt
	size             int64
	closer           io.Closer
	location         string
	fingerprint      string
	compressed       bool
	maxDecoderMemory uint64
	decoderLowmem    bool
	pool             *decompressPool
	index            map[string]int // entry name -> header ordinal
	order            []string
}

// Option configures an Archive.
type Option func(*Archive)

// WithMaxDecoderMemory limits the maximum memory used by the zstd decoder.
// Set limit to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(a *Archive) {
		a.maxDecoderMemory = limit
	}
}

// WithDecoderLowmem sets whether the zstd decoder should use low-memory mode (default: false).
func WithDecoderLowmem(enabled bool) Option {
	return func(a *Archive) {
		a.decoderLowmem = enabled
	}
}

// Open opens the tar or tar.zst file at path.
// The returned Archive owns the file and must be closed by the caller.
func Open(p string, opts ...Option) (*Archive, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(abs) //nolint:gosec // opening the caller's archive is the point
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	a, err := New(f, info.Size(), abs, opts...)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	a.fingerprint = fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano())
	return a, nil
}

// New creates an Archive over size bytes of tar data readable from r.
// Compression is detected from the stream's magic number.
func New(r io.ReaderAt, size int64, location string, opts ...Option) (*Archive, error) {
	if r == nil {
		return nil, errors.New("tarball: reader is nil")
	}
	a := &Archive{
		src:              r,
		size:             size,
		location:         location,
		maxDecoderMemory: DefaultMaxDecoderMemory,
		index:            make(map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}

	magic := make([]byte, len(zstdMagic))
	if n, _ := r.ReadAt(magic, 0); n == len(magic) && bytes.Equal(magic, zstdMagic) {
		a.compressed = true
		a.pool = newDecompressPool(a.maxDecoderMemory, a.decoderLowmem)
	}

	if err := a.buildIndex(); err != nil {
		return nil, fmt.Errorf("index %s: %w", location, err)
	}
	return a, nil
}

// buildIndex records the ordinal of the first regular-file header for each name.
func (a *Archive) buildIndex() error {
	tr, release, err := a.stream()
	if err != nil {
		return err
	}
	defer release()

	for ordinal := 0; ; ordinal++ {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if !hdr.FileInfo().Mode().IsRegular() {
			continue
		}
		name := cleanName(hdr.Name)
		if name == "" {
			continue
		}
		if _, dup := a.index[name]; dup {
			continue
		}
		a.index[name] = ordinal
		a.order = append(a.order, name)
	}
}

// stream returns a tar reader positioned at the start of the archive.
func (a *Archive) stream() (*tar.Reader, func(), error) {
	sr := io.NewSectionReader(a.src, 0, a.size)
	if !a.compressed {
		return tar.NewReader(sr), func() {}, nil
	}
	dec, release, err := a.pool.get(sr)
	if err != nil {
		return nil, nil, err
	}
	return tar.NewReader(dec), release, nil
}

// Location returns the canonical location of the archive.
func (a *Archive) Location() string {
	return a.location
}

// Fingerprint identifies the version of the file backing the archive.
// Returns "" for archives created with New.
func (a *Archive) Fingerprint() string {
	return a.fingerprint
}

// Compressed reports whether the stream is zstd-compressed.
func (a *Archive) Compressed() bool {
	return a.compressed
}

// Names yields entry names in stream order.
func (a *Archive) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, name := range a.order {
			if !yield(name) {
				return
			}
		}
	}
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.order)
}

// Open decompresses the stream up to the named entry and returns a reader over its content.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	target, ok := a.index[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}

	tr, release, err := a.stream()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	for ordinal := 0; ordinal <= target; ordinal++ {
		if _, err := tr.Next(); err != nil {
			release()
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
	}
	return &entryReader{Reader: tr, release: release}, nil
}

// Close releases the file opened by Open. It is a no-op for archives created with New.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// entryReader returns the pooled decoder on Close.
type entryReader struct {
	io.Reader
	release func()
	closed  bool
}

func (r *entryReader) Close() error {
	if !r.closed {
		r.closed = true
		r.release()
	}
	return nil
}

// cleanName converts a tar header name to a slash-separated relative path.
func cleanName(name string) string {
	name = strings.Trim(path.Clean("/"+name), "/")
	if name == "." {
		return ""
	}
	return name
}
