package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/meigma/archmod"
	"github.com/meigma/archmod/cache"
	"github.com/meigma/archmod/cache/disk"
	"github.com/meigma/archmod/cache/lru"
	"github.com/meigma/archmod/cache/weakref"
	"github.com/meigma/archmod/source/fsys"
	"github.com/meigma/archmod/source/jar"
	"github.com/meigma/archmod/source/remote"
	"github.com/meigma/archmod/source/stargz"
	"github.com/meigma/archmod/source/tarball"
)

const (
	cacheNone = "none"
	cacheWeak = "weak"
	cacheLRU  = "lru"
	cacheDisk = "disk"
)

type archiveCloser interface {
	archmod.Archive
	io.Closer
}

// openArchive picks a source from the file extension, or fsys for directories.
// http and https URLs are read with range requests.
func openArchive(ctx context.Context, target string, logger *slog.Logger) (archiveCloser, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return openRemote(ctx, target)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		a, err := fsys.Dir(target, fsys.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return nopCloser{a}, nil
	}

	var a archiveCloser
	switch formatOf(filepath.Base(target)) {
	case formatJar:
		a, err = jarArchive(jar.Open(target))
	case formatTar:
		a, err = tarArchive(tarball.Open(target))
	case formatStargz:
		a, err = stargzArchive(stargz.Open(target))
	default:
		return nil, fmt.Errorf("%s: unknown archive format", target)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func openRemote(ctx context.Context, rawURL string) (archiveCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	format := formatOf(path.Base(u.Path))
	if format == formatUnknown {
		return nil, fmt.Errorf("%s: unknown archive format", rawURL)
	}

	r, err := remote.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	var a archiveCloser
	switch format {
	case formatJar:
		a, err = jarArchive(jar.New(r, r.Size(), r.Location()))
	case formatTar:
		a, err = tarArchive(tarball.New(r, r.Size(), r.Location()))
	case formatStargz:
		a, err = stargzArchive(stargz.New(r, r.Size(), r.Location()))
	}
	if err != nil {
		return nil, err
	}
	return remoteArchive{archiveCloser: a, fingerprint: r.Fingerprint()}, nil
}

// remoteArchive carries the validator of the remote object as the fingerprint.
type remoteArchive struct {
	archiveCloser
	fingerprint string
}

func (a remoteArchive) Fingerprint() string {
	return a.fingerprint
}

type format int

const (
	formatUnknown format = iota
	formatJar
	formatTar
	formatStargz
)

func formatOf(name string) format {
	name = strings.ToLower(name)
	switch {
	case hasAnySuffix(name, ".jar", ".zip", ".war", ".ear", ".apk"):
		return formatJar
	case hasAnySuffix(name, ".tar", ".tar.zst", ".tzst"):
		return formatTar
	case hasAnySuffix(name, ".stargz", ".estargz"):
		return formatStargz
	default:
		return formatUnknown
	}
}

// The helpers below keep a nil concrete handle from becoming a non-nil interface.

func jarArchive(a *jar.Archive, err error) (archiveCloser, error) {
	if err != nil {
		return nil, err
	}
	return a, nil
}

func tarArchive(a *tarball.Archive, err error) (archiveCloser, error) {
	if err != nil {
		return nil, err
	}
	return a, nil
}

func stargzArchive(a *stargz.Archive, err error) (archiveCloser, error) {
	if err != nil {
		return nil, err
	}
	return a, nil
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

type nopCloser struct {
	*fsys.Archive
}

func (nopCloser) Close() error { return nil }

// newCache builds the cache selected by --cache.
func (o *options) newCache() (cache.Cache, error) {
	switch o.cacheKind {
	case cacheNone:
		return noCache{}, nil
	case cacheWeak:
		return weakref.New(), nil
	case cacheLRU:
		var opts []lru.Option
		if o.cacheMaxBytes > 0 {
			opts = append(opts, lru.WithMaxBytes(o.cacheMaxBytes))
		}
		return lru.New(opts...)
	case cacheDisk:
		dir := o.cacheDir
		if dir == "" {
			base, err := os.UserCacheDir()
			if err != nil {
				return nil, fmt.Errorf("resolve cache dir: %w", err)
			}
			dir = filepath.Join(base, "archmod")
		}
		return disk.New(dir, disk.WithMaxBytes(o.cacheMaxBytes))
	default:
		return nil, fmt.Errorf("unknown cache: %s", o.cacheKind)
	}
}

// retains reports whether the selected cache keeps content nobody references.
func (o *options) retains() bool {
	return o.cacheKind == cacheLRU || o.cacheKind == cacheDisk
}

// openModule opens the archive at target and wraps it in a Module.
// The returned function closes the archive.
func (o *options) openModule(ctx context.Context, target string) (*archmod.Module, func(), error) {
	c, err := o.newCache()
	if err != nil {
		return nil, nil, err
	}
	a, err := openArchive(ctx, target, o.logger)
	if err != nil {
		return nil, nil, err
	}
	m, err := archmod.Open(a,
		archmod.WithCache(c),
		archmod.WithLogger(o.logger),
		archmod.WithPrefetchWorkers(o.workers),
	)
	if err != nil {
		_ = a.Close()
		return nil, nil, err
	}
	closeFn := func() {
		if err := a.Close(); err != nil {
			o.logger.Warn("close archive", "archive", target, "error", err)
		}
	}
	return m, closeFn, nil
}

// noCache stores nothing, so every read decompresses.
type noCache struct{}

func (noCache) Get(string) ([]byte, bool) { return nil, false }
func (noCache) Put(string, []byte) error  { return nil }
func (noCache) Delete(string) error       { return nil }
func (noCache) Len() int                  { return 0 }
func (noCache) SizeBytes() int64          { return 0 }
