// Package stargz provides archive handles over eStargz blobs.
//
// eStargz layers carry a table of contents, so entries are enumerated from
// the TOC without decompressing file content, and each entry is decompressed
// on demand from its own gzip (or zstd:chunked) chunks.
package stargz

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/containerd/stargz-snapshotter/estargz"
	"github.com/containerd/stargz-snapshotter/estargz/zstdchunked"
)

// Archive is a read-only handle over an eStargz blob.
// Archive is safe for concurrent use.
type Archive struct {
	r           *estargz.Reader
	closer      io.Closer
	location    string
	fingerprint string
	names       []string
}

// Open opens the eStargz blob at path.
// The returned Archive owns the file and must be closed by the caller.
func Open(p string) (*Archive, error) {
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
	a, err := New(f, info.Size(), abs)
	if err != nil {
		f.Close()
		return nil, err
	}
	a.closer = f
	a.fingerprint = fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano())
	return a, nil
}

// New creates an Archive over size bytes of eStargz data readable from r.
// Both gzip and zstd:chunked layers are accepted.
func New(r io.ReaderAt, size int64, location string) (*Archive, error) {
	if r == nil {
		return nil, errors.New("stargz: reader is nil")
	}
	sr := io.NewSectionReader(r, 0, size)
	er, err := estargz.Open(sr, estargz.WithDecompressors(new(zstdchunked.Decompressor)))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	root, ok := er.Lookup("")
	if !ok {
		return nil, fmt.Errorf("open %s: missing root entry", location)
	}

	a := &Archive{r: er, location: location}
	collect(root, "", &a.names)
	slices.Sort(a.names)
	return a, nil
}

// collect appends the regular files below dir, skipping prefetch landmarks.
func collect(dir *estargz.TOCEntry, prefix string, names *[]string) {
	dir.ForeachChild(func(base string, child *estargz.TOCEntry) bool {
		name := path.Join(prefix, base)
		switch child.Type {
		case "dir":
			collect(child, name, names)
		case "reg":
			if isLandmark(name) {
				return true
			}
			*names = append(*names, name)
		}
		return true
	})
}

func isLandmark(name string) bool {
	return name == estargz.PrefetchLandmark || name == estargz.NoPrefetchLandmark
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

// Names yields entry names in lexical order.
func (a *Archive) Names() iter.Seq[string] {
	return slices.Values(a.names)
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.names)
}

// Open returns a reader over the decompressed content of the named entry.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	ent, ok := a.r.Lookup(name)
	if !ok || ent.Type != "reg" || isLandmark(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	sr, err := a.r.OpenFile(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return io.NopCloser(sr), nil
}

// Close releases the file opened by Open. It is a no-op for archives created with New.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
