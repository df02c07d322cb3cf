package loop

import (
	"fmt"

	"github.com/parloop/parloop/internal/core/access"
	"github.com/parloop/parloop/internal/core/mesh"
)

// Kernel is the per-entity user function. args follow the order of the
// loop's access descriptors. Slices are only valid during the call.
type Kernel func(args []Arg) error

// Arg is the gathered data of one descriptor for the current entity:
// Count slots of Dim elements, laid out slot after slot. Read arguments
// hold the current values, Write and ReadWrite the current values to be
// overwritten, Inc a zeroed delta to accumulate into.
type Arg struct {
	Dim   int
	Count int
	Mode  access.Mode

	buf any
}

// Slice returns the argument buffer as []T, or nil if the dat holds a
// different element type.
func Slice[T mesh.Number](a Arg) []T {
	v, _ := a.buf.([]T)
	return v
}

func (a Arg) F64() []float64 { return Slice[float64](a) }
func (a Arg) F32() []float32 { return Slice[float32](a) }
func (a Arg) I32() []int32   { return Slice[int32](a) }
func (a Arg) I64() []int64   { return Slice[int64](a) }

// Raw returns the untyped buffer.
func (a Arg) Raw() any { return a.buf }

// Len is Count times Dim.
func (a Arg) Len() int { return a.Count * a.Dim }

// NewArg wraps a buffer as a kernel argument, for calling kernels outside
// a loop.
func NewArg[T mesh.Number](buf []T, dim int, mode access.Mode) Arg {
	count := 0
	if dim > 0 {
		count = len(buf) / dim
	}
	return Arg{Dim: dim, Count: count, Mode: mode, buf: buf}
}

// invoke calls k, turning a panic into an error.
func invoke(k Kernel, args []Arg) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return k(args)
}
