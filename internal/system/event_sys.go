package system

import (
	"context"

	"github.com/parloop/parloop/internal/core/event"
	coresys "github.com/parloop/parloop/internal/core/system"
)

// EventDispatchSystem delivers the previous step's engine events.
// Phase 0 (Events).
type EventDispatchSystem struct {
	bus *event.Bus
}

func NewEventDispatchSystem(bus *event.Bus) *EventDispatchSystem {
	return &EventDispatchSystem{bus: bus}
}

func (s *EventDispatchSystem) Phase() coresys.Phase { return coresys.PhaseEvents }

func (s *EventDispatchSystem) Update(_ context.Context, _ int) error {
	s.bus.SwapBuffers()
	s.bus.DispatchAll()
	return nil
}
