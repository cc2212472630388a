// Package pool runs work on a bounded set of goroutines.
package pool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Map applies fn to every item using at most workers goroutines and returns
// the outputs in input order. If workers <= 0, defaults to runtime.NumCPU().
// The first error cancels the remaining work and is returned.
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	out := make([]R, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			v, err := fn(gctx, item)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
