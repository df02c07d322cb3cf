package system

import "context"

// Phase defines execution ordering within a single step.
type Phase int

const (
	PhaseEvents  Phase = iota // 0: deliver last step's events
	PhaseCompute              // 1: parallel loops
	PhasePersist              // 2: checkpoints
)

// System is one unit of work run every step.
type System interface {
	Phase() Phase
	Update(ctx context.Context, step int) error
}
