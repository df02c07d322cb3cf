package loop

import (
	"fmt"
	"strings"
)

// FaultPolicy decides what a kernel failure does to the rest of the loop.
type FaultPolicy uint8

const (
	// Abort stops every block at its next color barrier and fails the loop.
	Abort FaultPolicy = iota
	// Isolate skips the failed entity and keeps going; faults are reported
	// once the loop completes.
	Isolate
)

func (p FaultPolicy) String() string {
	if p == Isolate {
		return "isolate"
	}
	return "abort"
}

func ParseFaultPolicy(s string) (FaultPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return Abort, nil
	case "isolate", "skip":
		return Isolate, nil
	}
	return Abort, fmt.Errorf("unknown fault policy %q", s)
}

// KernelFault is a kernel failure on one entity. The entity's outputs are
// never committed.
type KernelFault struct {
	Loop   string
	Entity int
	Err    error
}

func (f *KernelFault) Error() string {
	return fmt.Sprintf("kernel fault in loop %q at entity %d: %v", f.Loop, f.Entity, f.Err)
}

func (f *KernelFault) Unwrap() error { return f.Err }
