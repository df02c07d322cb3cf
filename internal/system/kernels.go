package system

import (
	"errors"
	"fmt"

	"github.com/parloop/parloop/internal/core/loop"
)

// ErrNoKernel is returned when no source provides a kernel name.
var ErrNoKernel = errors.New("kernel not found")

// KernelSource resolves kernel names to callables.
type KernelSource interface {
	Kernel(name string) (loop.Kernel, error)
}

// Builtins is a fixed table of Go kernels.
type Builtins map[string]loop.Kernel

func (b Builtins) Kernel(name string) (loop.Kernel, error) {
	if k, ok := b[name]; ok {
		return k, nil
	}
	return nil, fmt.Errorf("builtin %q: %w", name, ErrNoKernel)
}

// Kernels tries each source in order and returns the first match.
type Kernels []KernelSource

func (ks Kernels) Kernel(name string) (loop.Kernel, error) {
	for _, src := range ks {
		if src == nil {
			continue
		}
		if k, err := src.Kernel(name); err == nil {
			return k, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", name, ErrNoKernel)
}
