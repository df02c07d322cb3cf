package event

import (
	"time"

	"github.com/parloop/parloop/internal/core/mesh"
)

// PlanBuilt is emitted when a loop call missed the plan cache.
type PlanBuilt struct {
	Loop   string
	Set    mesh.SetID
	Blocks int
	Colors int
	Shared int
}

// LoopCompleted is emitted after every parallel loop call.
type LoopCompleted struct {
	Loop     string
	Set      mesh.SetID
	Entities int
	Executed int
	Faults   int
	PlanHit  bool
	Elapsed  time.Duration
	Err      error
}
