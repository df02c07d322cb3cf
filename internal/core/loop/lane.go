package loop

import (
	"github.com/parloop/parloop/internal/core/access"
	"github.com/parloop/parloop/internal/core/mesh"
	"github.com/parloop/parloop/internal/core/plan"
)

// binding is a descriptor resolved against the mesh for one run.
type binding struct {
	dat    *mesh.Dat
	mode   access.Mode
	dim    int
	count  int
	direct bool
	index  int
	arity  int
	table  []int32
}

// slot returns the dat slot of the j-th gathered element of entity e.
func (b *binding) slot(e, j int) int {
	switch {
	case b.direct:
		return e
	case b.index == access.All:
		return int(b.table[e*b.arity+j])
	default:
		return int(b.table[e*b.arity+b.index])
	}
}

// lane moves one argument between its dat and the kernel buffer.
type lane interface {
	gather(e int)
	commit(e int)
	arg() Arg
}

// stager holds block-local copies of shared slots until the merge pass.
type stager interface {
	merge()
}

type typedLane[T mesh.Number] struct {
	b       *binding
	global  []T
	stage   *stage[T]
	scratch []T
}

func (l *typedLane[T]) arg() Arg {
	return Arg{Dim: l.b.dim, Count: l.b.count, Mode: l.b.mode, buf: l.scratch}
}

// view returns the dim-long window of slot s, staged or global.
func (l *typedLane[T]) view(s int) []T {
	dim := l.b.dim
	if l.stage != nil {
		if p, ok := l.stage.shared.Pos(s); ok {
			return l.stage.vals[p*dim : (p+1)*dim]
		}
	}
	return l.global[s*dim : (s+1)*dim]
}

func (l *typedLane[T]) gather(e int) {
	if l.b.mode == access.Inc {
		clear(l.scratch)
		return
	}
	dim := l.b.dim
	for j := 0; j < l.b.count; j++ {
		copy(l.scratch[j*dim:(j+1)*dim], l.view(l.b.slot(e, j)))
	}
}

func (l *typedLane[T]) commit(e int) {
	if l.b.mode == access.Read {
		return
	}
	dim := l.b.dim
	for j := 0; j < l.b.count; j++ {
		dst := l.view(l.b.slot(e, j))
		src := l.scratch[j*dim : (j+1)*dim]
		if l.b.mode == access.Inc {
			for i := range dst {
				dst[i] += src[i]
			}
		} else {
			copy(dst, src)
		}
	}
}

type stage[T mesh.Number] struct {
	shared *plan.Shared
	dim    int
	vals   []T
	global []T
}

func newTypedStage[T mesh.Number](sh *plan.Shared, dim int, global []T) *stage[T] {
	s := &stage[T]{shared: sh, dim: dim, vals: make([]T, len(sh.Slots)*dim), global: global}
	if sh.Mode != access.Inc {
		for i, slot := range sh.Slots {
			copy(s.vals[i*dim:(i+1)*dim], global[slot*dim:(slot+1)*dim])
		}
	}
	return s
}

// merge folds the block-local values into the dat: increments add,
// writes overwrite.
func (s *stage[T]) merge() {
	dim := s.dim
	for i, slot := range s.shared.Slots {
		dst := s.global[slot*dim : (slot+1)*dim]
		src := s.vals[i*dim : (i+1)*dim]
		if s.shared.Mode == access.Inc {
			for k := range dst {
				dst[k] += src[k]
			}
		} else {
			copy(dst, src)
		}
	}
}

func newStage(d *mesh.Dat, sh *plan.Shared) stager {
	switch g := d.Storage().(type) {
	case []int32:
		return newTypedStage(sh, d.Dim, g)
	case []int64:
		return newTypedStage(sh, d.Dim, g)
	case []float32:
		return newTypedStage(sh, d.Dim, g)
	case []float64:
		return newTypedStage(sh, d.Dim, g)
	}
	return nil
}

func newTypedLane[T mesh.Number](b *binding, global []T, st stager) *typedLane[T] {
	l := &typedLane[T]{b: b, global: global, scratch: make([]T, b.count*b.dim)}
	l.stage, _ = st.(*stage[T])
	return l
}

func newLane(b *binding, st stager) lane {
	switch g := b.dat.Storage().(type) {
	case []int32:
		return newTypedLane(b, g, st)
	case []int64:
		return newTypedLane(b, g, st)
	case []float32:
		return newTypedLane(b, g, st)
	case []float64:
		return newTypedLane(b, g, st)
	}
	return nil
}
