package archmod

import (
	"io"
	"iter"
)

// Archive is an already-open, read-only archive handle.
//
// Implementations exist for jars (source/jar), tar and tar.zst streams
// (source/tarball), eStargz blobs (source/stargz) and fs.FS trees
// (source/fsys). The caller owns the handle: a Module only reads from it and
// never closes it. Open must be safe for concurrent use.
type Archive interface {
	// Location returns the canonical location of the archive, such as its
	// absolute path. Modules use it as their identity.
	Location() string

	// Names yields the name of every entry in the archive, in whatever order
	// the handle stores them.
	Names() iter.Seq[string]

	// Open returns a reader over the decompressed content of the named entry.
	// Unknown names return an error wrapping fs.ErrNotExist.
	Open(name string) (io.ReadCloser, error)
}

// Fingerprinter is implemented by archives that can identify the version of
// their backing resource (for example, file size and modification time).
//
// When present, the fingerprint is folded into cache keys so persistent
// caches never serve content from an older archive at the same location.
type Fingerprinter interface {
	Fingerprint() string
}
