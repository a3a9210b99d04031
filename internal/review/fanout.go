package review

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunAll runs worker over every unit with at most limit calls in flight and
// returns the results in unit order. The first error cancels the context
// handed to the other workers, units that have not started yet are skipped,
// and that error is returned with no partial results.
func RunAll[U, R any](ctx context.Context, units []U, limit int, worker func(ctx context.Context, i int, u U) (R, error)) ([]R, error) {
	if limit <= 0 {
		limit = 1
	}

	results := make([]R, len(units))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, u := range units {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// A slot may free up only after a sibling failed.
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := worker(gctx, i, u)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
