package plan

import "runtime"

// partition splits [0, n) into contiguous blocks of at most size entities.
// A non-positive size spreads the set evenly over workers.
func partition(n, size, workers int) [][2]int {
	if n == 0 {
		return nil
	}
	if size <= 0 {
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		size = (n + workers - 1) / workers
	}
	blocks := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		blocks = append(blocks, [2]int{start, min(start+size, n)})
	}
	return blocks
}
