// Package fsys provides archive handles over fs.FS trees, such as exploded class directories.
package fsys

import (
	"errors"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
)

// Archive is a read-only handle over an fs.FS.
//
// Entries are the regular files reachable from the root. Names are
// enumerated afresh on every call, so files added to the tree show up on the
// next enumeration.
type Archive struct {
	fsys     fs.FS
	location string
	logger   *slog.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for walk failures.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// New wraps fsys. The location is used verbatim as the archive's canonical location.
func New(fsys fs.FS, location string, opts ...Option) (*Archive, error) {
	if fsys == nil {
		return nil, errors.New("fsys: filesystem is nil")
	}
	a := &Archive{fsys: fsys, location: location}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Dir wraps the directory at path. The location is the absolute path.
func Dir(path string, opts ...Option) (*Archive, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: abs, Err: errors.New("not a directory")}
	}
	return New(os.DirFS(abs), abs, opts...)
}

// Location returns the canonical location of the tree.
func (a *Archive) Location() string {
	return a.location
}

func (a *Archive) log() *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return slog.New(slog.DiscardHandler)
}

// Names walks the tree and yields regular file paths in lexical order.
// A path that cannot be read is logged and skipped; its siblings are still
// enumerated.
func (a *Archive) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		// The callback returns only SkipDir and SkipAll, which the walk absorbs.
		_ = fs.WalkDir(a.fsys, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				a.log().Warn("skipping unreadable path", "archive", a.location, "path", p, "error", err)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if !yield(p) {
				return fs.SkipAll
			}
			return nil
		})
	}
}

// Open opens the named file.
func (a *Archive) Open(name string) (io.ReadCloser, error) {
	f, err := a.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return f, nil
}
