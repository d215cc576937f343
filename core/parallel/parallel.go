// Package parallel provides chunked parallel loops for per-row work in
// prediction and training.
package parallel

import (
	"runtime"
	"sync"
)

// Parallelize splits items across the CPU cores and calls fn with the
// [start, end) range each worker owns.
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeWithWorkers(items, 0, fn)
}

// ParallelizeWithThreshold runs sequentially while items stays at or
// below the threshold, avoiding goroutine overhead on small inputs.
func ParallelizeWithThreshold(items, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}
	Parallelize(items, fn)
}

// ParallelizeWithWorkers is Parallelize with an explicit worker count,
// for callers whose thread count is a user-facing parameter
// (num_threads). workers <= 0 falls back to the CPU count.
func ParallelizeWithWorkers(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > items {
		workers = items
	}

	// Ceiling division so the last chunk is never dropped.
	chunkSize := (items + workers - 1) / workers

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
