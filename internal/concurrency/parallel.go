// Package concurrency provides a small bounded worker pool for
// fan-out over a fixed slice of work items.
package concurrency

import (
	"context"
	"sync"
)

// ForEach runs itemFunc for every item using at most maxWorkers
// goroutines pulling from a shared queue. It collects the per-item
// errors; a failing item never stops the others. Once ctx is done,
// workers stop picking up new items but in-flight calls finish.
func ForEach[T any](
	ctx context.Context,
	items []T,
	maxWorkers int,
	itemFunc func(ctx context.Context, index int, item T) error,
) []error {
	if len(items) == 0 {
		return nil
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if maxWorkers > len(items) {
		maxWorkers = len(items)
	}

	jobs := make(chan int, len(items))
	errs := make(chan error, len(items))

	var wg sync.WaitGroup
	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					return
				}
				if err := itemFunc(ctx, i, items[i]); err != nil {
					errs <- err
				}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(errs)

	var out []error
	for err := range errs {
		out = append(out, err)
	}
	return out
}
