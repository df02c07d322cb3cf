package plan

import "math/bits"

// keyFunc appends the conflict keys of entity e to dst.
type keyFunc func(e int, dst []uint64) []uint64

// colorBlock greedily colors entities [start, end) in order. Each entity gets
// the smallest color not held by an already colored entity sharing one of
// its keys. Colors are handed out 64 at a time from per-key bit masks;
// entities that find all 64 taken wait for the next round.
func colorBlock(start, end int, keys keyFunc) [][]int {
	n := end - start
	color := make([]int, n)
	for i := range color {
		color[i] = -1
	}

	var (
		buf       []uint64
		masks     = make(map[uint64]uint64)
		remaining = n
		ncolors   = 0
	)
	for base := 0; remaining > 0; base += 64 {
		clear(masks)
		for i := 0; i < n; i++ {
			if color[i] >= 0 {
				continue
			}
			buf = keys(start+i, buf[:0])
			var used uint64
			for _, k := range buf {
				used |= masks[k]
			}
			if used == ^uint64(0) {
				continue
			}
			c := bits.TrailingZeros64(^used)
			for _, k := range buf {
				masks[k] |= 1 << c
			}
			color[i] = base + c
			ncolors = max(ncolors, base+c+1)
			remaining--
		}
	}

	classes := make([][]int, ncolors)
	for i, c := range color {
		classes[c] = append(classes[c], start+i)
	}
	return classes
}

// singleColor is the schedule of a block without conflicts.
func singleColor(start, end int) [][]int {
	if end == start {
		return nil
	}
	all := make([]int, end-start)
	for i := range all {
		all[i] = start + i
	}
	return [][]int{all}
}
