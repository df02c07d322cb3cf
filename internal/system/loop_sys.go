package system

import (
	"context"
	"fmt"

	"github.com/parloop/parloop/internal/core/loop"
	coresys "github.com/parloop/parloop/internal/core/system"
	"github.com/parloop/parloop/internal/engine"
	"github.com/parloop/parloop/internal/meshio"
	"go.uber.org/zap"
)

type scheduled struct {
	meshio.Loop
	kernel loop.Kernel
}

// LoopSystem runs the loop schedule once per step, in schedule order.
// Phase 1 (Compute).
type LoopSystem struct {
	eng   *engine.Engine
	loops []scheduled
	last  []*loop.Report
	log   *zap.Logger
}

// NewLoopSystem resolves every loop's kernel up front so a missing kernel
// fails before the first step.
func NewLoopSystem(eng *engine.Engine, loops []meshio.Loop, kernels KernelSource, log *zap.Logger) (*LoopSystem, error) {
	s := &LoopSystem{eng: eng, log: log}
	for _, l := range loops {
		k, err := kernels.Kernel(l.Kernel)
		if err != nil {
			return nil, fmt.Errorf("loop %q: %w", l.Name, err)
		}
		s.loops = append(s.loops, scheduled{Loop: l, kernel: k})
	}
	return s, nil
}

func (s *LoopSystem) Phase() coresys.Phase { return coresys.PhaseCompute }

func (s *LoopSystem) Update(ctx context.Context, step int) error {
	s.last = s.last[:0]
	for _, l := range s.loops {
		rep, err := s.eng.ParLoop(ctx, l.kernel, l.Name, l.Set, l.Args...)
		if rep != nil {
			s.last = append(s.last, rep)
		}
		if err != nil {
			return err
		}
	}
	s.log.Debug("loop schedule done", zap.Int("step", step), zap.Int("loops", len(s.loops)))
	return nil
}

// LastReports returns the reports of the most recent step.
func (s *LoopSystem) LastReports() []*loop.Report {
	return append([]*loop.Report(nil), s.last...)
}
