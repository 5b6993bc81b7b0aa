package tv

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEach calls fn for each index in [0, n) with at most workers calls in
// flight. It stops launching new calls once ctx is done and returns the number
// of calls started; every started call has returned when forEach returns.
func forEach(ctx context.Context, n, workers int, fn func(i int)) int {
	if workers <= 0 {
		workers = 1
	}
	var g errgroup.Group
	g.SetLimit(workers)

	started := 0
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(i)
			return nil
		})
		started++
	}
	_ = g.Wait() // fn never returns an error
	return started
}
