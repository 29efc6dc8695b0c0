package utils

import (
	"runtime"
	"sync"
)

// ParallelRange splits [0, n) into contiguous chunks and runs fn on each chunk
// from its own goroutine. fn receives the half-open bounds of its chunk.
// Results must be written to disjoint slice regions; the function provides no
// other synchronization.
func ParallelRange(n int, fn func(start, end int)) {
	workers := runtime.NumCPU()
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		if n > 0 {
			fn(0, n)
		}
		return
	}

	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}

// ParallelFor runs fn for every index in [0, n), distributing indices across
// CPU-bound goroutines.
func ParallelFor(n int, fn func(i int)) {
	ParallelRange(n, func(start, end int) {
		for i := start; i < end; i++ {
			fn(i)
		}
	})
}
