package fetch

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach calls fn for every item with at most workers calls in flight.
// Per-item failures are the caller's to record; an error returned by fn stops
// the remaining items and is returned. Cancellation of ctx stops issuing new
// calls and returns ctx.Err().
func ForEach[T any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T) error) error {
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, item)
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
