// Package jar provides archive handles over zip-based containers (jar, apk, war, zip).
package jar

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Archive is a read-only handle over a zip-based container.
//
// Entries are the regular files of the zip central directory. When a name
// appears more than once, the first occurrence wins. Archive is safe for
// concurrent use.
type Archive struct {
	r           *zip.Reader
	closer      io.Closer // nil when the caller owns the underlying reader
	location    string
	fingerprint string
	files       map[string]*zip.File
	order       []string
}

// Open opens the zip file at path.
// The returned Archive owns the file and must be closed by the caller.
func Open(path string) (*Archive, error) {
	abs, err := filepath.Abs(path)
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
	r, err := zip.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", abs, err)
	}
	a := newArchive(r, abs)
	a.closer = f
	a.fingerprint = fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano())
	return a, nil
}

// New creates an Archive over size bytes of zip data readable from r.
// The location is used verbatim as the archive's canonical location.
func New(r io.ReaderAt, size int64, location string) (*Archive, error) {
	if r == nil {
		return nil, errors.New("jar: reader is nil")
	}
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	return newArchive(zr, location), nil
}

func newArchive(r *zip.Reader, location string) *Archive {
	a := &Archive{
		r:        r,
		location: location,
		files:    make(map[string]*zip.File, len(r.File)),
		order:    make([]string, 0, len(r.File)),
	}
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, "/") || f.FileInfo().IsDir() {
			continue
		}
		if _, dup := a.files[f.Name]; dup {
			continue
		}
		a.files[f.Name] = f
		a.order = append(a.order, f.Name)
	}
	return a
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

// Names yields entry names in central directory order.
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

// Open returns a decompressing reader for the named entry.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	rc, err := f.Open()
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return rc, nil
}

// Close releases the file opened by Open. It is a no-op for archives created with New.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
