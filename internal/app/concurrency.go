package app

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Parallel2 executes two fetches concurrently and returns both results or
// the first error. Both goroutines are canceled when either fails, so a
// page load never waits on a fetch whose sibling already doomed the page.
func Parallel2[T1, T2 any](
	ctx context.Context,
	fn1 func(context.Context) (T1, error),
	fn2 func(context.Context) (T2, error),
) (result1 T1, result2 T2, err error) {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var fnErr error

		result1, fnErr = fn1(ctx)

		return fnErr
	})

	g.Go(func() error {
		var fnErr error

		result2, fnErr = fn2(ctx)

		return fnErr
	})

	err = g.Wait()
	if err != nil {
		var (
			zero1 T1
			zero2 T2
		)

		return zero1, zero2, fmt.Errorf("parallel load failed: %w", err)
	}

	return result1, result2, nil
}

// PartialResult holds a result or an error for partial success patterns.
type PartialResult[T any] struct {
	Value T
	Err   error
}

// ParallelPartial executes fetches and collects all results, even on partial
// failure. Used for dashboard widgets where one failed section must not
// blank the whole page.
func ParallelPartial[T any](
	ctx context.Context,
	fns ...func(context.Context) (T, error),
) []PartialResult[T] {
	results := make([]PartialResult[T], len(fns))

	var wg sync.WaitGroup

	for i, fn := range fns {
		wg.Go(func() {
			value, err := fn(ctx)
			results[i] = PartialResult[T]{Value: value, Err: err}
		})
	}

	wg.Wait()

	return results
}
