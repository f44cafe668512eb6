package executor

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// Collect runs fn over every item with at most limit goroutines in their live
// phase at once, and returns the results in completion order, which is
// scheduler-determined. Callers that need to correlate a result back to its
// originating item must carry the item inside R.
//
// Failures are values inside R, never control flow: one failed item cannot
// abort its siblings. onDone, when non-nil, is invoked once per completion
// before the result is collected, in completion order.
func Collect[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) R, onDone func(R)) []R {
	if limit < 1 {
		limit = 1
	}

	p := pool.New().WithMaxGoroutines(limit)
	results := make(chan R, len(items))
	for _, item := range items {
		p.Go(func() {
			results <- fn(ctx, item)
		})
	}
	go func() {
		p.Wait()
		close(results)
	}()

	out := make([]R, 0, len(items))
	for r := range results {
		if onDone != nil {
			onDone(r)
		}
		out = append(out, r)
	}
	return out
}
