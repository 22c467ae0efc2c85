// Package archmod exposes archive-based code containers (jars, class tarballs,
// eStargz layers, class directories) as modules of addressable entries for
// analysis pipelines.
//
// A [Module] wraps an already-open [Archive] handle. It enumerates entries and
// serves their decompressed content through a reclaimable [cache.Cache], so
// repeated passes over the same module do not decompress the same entry twice
// while the cached cell stays live.
//
// # Quick Start
//
// Open a jar and read every class:
//
//	a, err := jar.Open("app.jar")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	m, err := archmod.Open(a)
//	if err != nil {
//	    return err
//	}
//	for e := range m.Entries() {
//	    content, err := m.ReadEntry(e)
//	    ...
//	}
//
// # Caching
//
// By default each Module keeps weak references to content it returned, so
// cells live as long as the analysis holds the bytes. Bounded or persistent
// policies are plugged in with [WithCache]:
//
//	c, _ := lru.New(lru.WithMaxBytes(512 << 20))
//	m, err := archmod.Open(a, archmod.WithCache(c))
//
// # Remote archives
//
// source/remote reads over HTTP range requests, so only the entries read
// are transferred:
//
//	r, err := remote.Open(ctx, "https://repo.example.com/app.jar")
//	a, err := jar.New(r, r.Size(), r.Location())
//
// # Identity
//
// Modules compare equal when their archives share a canonical location,
// regardless of which handle instance they wrap. Use [Module.Key] as a map
// key and [Scope] to group modules by class loader.
package archmod
