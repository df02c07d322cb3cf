package mesh

import (
	"fmt"
	"strings"
)

// ElemType is the numeric element type of a dat.
type ElemType uint8

const (
	Unknown ElemType = iota
	Int32
	Int64
	Float32
	Float64
)

// Number is the set of Go element types a dat can hold.
type Number interface {
	int32 | int64 | float32 | float64
}

func (t ElemType) String() string {
	switch t {
	case Int32:
		return "int"
	case Int64:
		return "long"
	case Float32:
		return "float"
	case Float64:
		return "double"
	}
	return "unknown"
}

// Size returns the element width in bytes.
func (t ElemType) Size() int {
	switch t {
	case Int32, Float32:
		return 4
	case Int64, Float64:
		return 8
	}
	return 0
}

// ParseElemType accepts both the C names used in kernel declarations
// ("int", "double", ...) and Go names ("int32", "float64", ...).
func ParseElemType(s string) (ElemType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int", "int32", "integer":
		return Int32, nil
	case "long", "int64":
		return Int64, nil
	case "float", "float32", "real":
		return Float32, nil
	case "double", "float64":
		return Float64, nil
	}
	return Unknown, fmt.Errorf("unknown element type %q", s)
}

// TypeOf reports the ElemType matching T.
func TypeOf[T Number]() ElemType {
	var zero T
	switch any(zero).(type) {
	case int32:
		return Int32
	case int64:
		return Int64
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return Unknown
}

// newStorage allocates a zeroed backing slice for n elements of type t.
func newStorage(t ElemType, n int) any {
	switch t {
	case Int32:
		return make([]int32, n)
	case Int64:
		return make([]int64, n)
	case Float32:
		return make([]float32, n)
	case Float64:
		return make([]float64, n)
	}
	return nil
}

// storageOf returns the element type and length of a backing slice.
func storageOf(v any) (ElemType, int) {
	switch s := v.(type) {
	case []int32:
		return Int32, len(s)
	case []int64:
		return Int64, len(s)
	case []float32:
		return Float32, len(s)
	case []float64:
		return Float64, len(s)
	}
	return Unknown, 0
}

// cloneStorage copies a backing slice so callers never alias engine memory.
func cloneStorage(v any) any {
	switch s := v.(type) {
	case []int32:
		return append([]int32(nil), s...)
	case []int64:
		return append([]int64(nil), s...)
	case []float32:
		return append([]float32(nil), s...)
	case []float64:
		return append([]float64(nil), s...)
	}
	return nil
}
