package system

import (
	"context"
	"time"

	"github.com/parloop/parloop/internal/core/mesh"
	coresys "github.com/parloop/parloop/internal/core/system"
	"go.uber.org/zap"
)

// Checkpointer stores the dats of a mesh context under a run and step.
type Checkpointer interface {
	Save(ctx context.Context, run string, step int, c *mesh.Context) error
}

// CheckpointSystem saves every dat each interval steps. Phase 2 (Persist).
type CheckpointSystem struct {
	store    Checkpointer
	mesh     *mesh.Context
	run      string
	interval int
	offset   int // step the run resumed from
	saved    int // last saved step
	log      *zap.Logger
}

func NewCheckpointSystem(store Checkpointer, c *mesh.Context, run string, interval, offset int, log *zap.Logger) *CheckpointSystem {
	if interval < 1 {
		interval = 1
	}
	return &CheckpointSystem{
		store:    store,
		mesh:     c,
		run:      run,
		interval: interval,
		offset:   offset,
		saved:    -1,
		log:      log,
	}
}

func (s *CheckpointSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *CheckpointSystem) Update(ctx context.Context, step int) error {
	done := s.offset + step + 1
	if done%s.interval != 0 {
		return nil
	}
	return s.save(ctx, done)
}

// Final saves the state after the last step unless that step was already
// saved. Called on shutdown.
func (s *CheckpointSystem) Final(ctx context.Context, steps int) error {
	done := s.offset + steps
	if done == s.saved {
		return nil
	}
	return s.save(ctx, done)
}

func (s *CheckpointSystem) save(ctx context.Context, step int) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.store.Save(ctx, s.run, step, s.mesh); err != nil {
		s.log.Error("checkpoint failed", zap.String("run", s.run), zap.Int("step", step), zap.Error(err))
		return err
	}
	s.saved = step
	s.log.Info("checkpoint saved", zap.String("run", s.run), zap.Int("step", step))
	return nil
}
