// Package parallel fans coarse batched kernel work out across CPU cores.
package parallel

import (
	"runtime"
	"sync"
)

// Config bounds the fan-out of a parallel loop.
type Config struct {
	Workers int // maximum goroutines; values below 2 run sequentially
	Grain   int // minimum items per worker before another is added
}

// DefaultConfig sizes the fan-out to the machine. Grain 2 suits the coarse
// items the CPU backend hands out: whole matrices and batch-head slices.
func DefaultConfig() Config {
	return Config{Workers: runtime.NumCPU(), Grain: 2}
}

// For executes f(i) for every i in [0, n), striding the index space across at
// most cfg.Workers goroutines. Invocations of f must write to disjoint output
// regions. Small n runs inline on the calling goroutine.
func For(n int, f func(i int), cfg Config) {
	workers := cfg.Workers
	if cfg.Grain > 0 && n/cfg.Grain < workers {
		workers = n / cfg.Grain
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(start int) {
			defer wg.Done()
			for i := start; i < n; i += workers {
				f(i)
			}
		}(w)
	}
	wg.Wait()
}
