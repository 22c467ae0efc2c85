package archmod

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Prefetch decompresses the named entries into the cache, or every entry when
// no names are given.
//
// Up to the configured number of workers run at once. Prefetch stops at the
// first read failure or when ctx is cancelled; an entry already being
// decompressed runs to completion. Prefetching pays off with caches that
// retain unreferenced content (lru, disk); weak-reference cells may be
// reclaimed before they are used.
func (m *Module) Prefetch(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		names = m.EntryNames()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.prefetchWorkers)
	for _, name := range names {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := m.Content(name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
