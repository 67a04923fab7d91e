package field

import (
	"runtime"
	"sync"
)

// minRowsPerWorker keeps tiny grids on the calling goroutine.
const minRowsPerWorker = 16

// ForRows calls fn over disjoint row ranges [y0, y1) covering [0, height).
//
// The image is processed in horizontal strips. workers <= 0 means
// runtime.NumCPU(). ForRows returns after every strip has finished.
func ForRows(height, workers int, fn func(y0, y1 int)) {
	if height <= 0 {
		return
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if limit := height / minRowsPerWorker; workers > limit {
		workers = limit
	}
	if workers <= 1 {
		fn(0, height)
		return
	}

	rowsPerWorker := (height + workers - 1) / workers // ceil division
	var wg sync.WaitGroup
	for start := 0; start < height; start += rowsPerWorker {
		end := start + rowsPerWorker
		if end > height {
			end = height
		}
		wg.Add(1)
		go func(y0, y1 int) {
			defer wg.Done()
			fn(y0, y1)
		}(start, end)
	}
	wg.Wait()
}
