package snapshot

import (
	"context"
	"sync"
)

// runIndexedParallel executes fn for indices [0,n) using a worker pool and
// hands every result to collect in completion order. collect runs on the
// calling goroutine only. Dispatch stops once ctx is done; work already
// handed to a worker still completes and is collected.
func runIndexedParallel[T any](ctx context.Context, n, workers int, fn func(int) T, collect func(T)) {
	jobs := make(chan int)
	results := make(chan T)
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range jobs {
			results <- fn(idx)
		}
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go worker()
	}

	go func() {
		defer close(jobs)
		for i := 0; i < n; i++ {
			select {
			case jobs <- i:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		collect(r)
	}
}

// runIndexedSequential is the single-worker path: no goroutines.
func runIndexedSequential[T any](ctx context.Context, n int, fn func(int) T, collect func(T)) {
	for i := 0; i < n; i++ {
		if ctx.Err() != nil {
			return
		}
		collect(fn(i))
	}
}
