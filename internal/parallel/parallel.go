// Package parallel fans independent index ranges out across goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls how work is split.
type Config struct {
	Enabled      bool // run on multiple goroutines when true
	NumWorkers   int  // upper bound of goroutines
	MinChunkSize int  // minimum indexes handled by one goroutine
}

// DefaultConfig uses one goroutine per CPU.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 4,
	}
}

// For calls f(i) for every i in [0, n). Each index is visited exactly once;
// indexes are processed sequentially when parallelism is disabled or n is
// below MinChunkSize.
func For(n int, f func(i int), cfg Config) {
	workers := cfg.NumWorkers
	if !cfg.Enabled || workers < 2 || n < cfg.MinChunkSize || n < 2 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}
	chunk := max((n+workers-1)/workers, cfg.MinChunkSize, 1)
	var wg sync.WaitGroup
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, end)
	}
	wg.Wait()
}

// ForGrid calls f(outer, inner) for every cell of an outer x inner grid,
// splitting the flattened range with For.
func ForGrid(outer, inner int, f func(o, i int), cfg Config) {
	if inner <= 0 {
		return
	}
	For(outer*inner, func(k int) {
		f(k/inner, k%inner)
	}, cfg)
}
