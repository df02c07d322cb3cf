package system

import (
	"context"
	"fmt"
	"sort"
)

// Runner executes systems in phase order each step. Systems of the same
// phase keep their registration order.
type Runner struct {
	systems []System
	sorted  bool
	step    int
}

func NewRunner() *Runner {
	return &Runner{
		systems: make([]System, 0, 16),
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Step runs every system once. The first failing system stops the step.
func (r *Runner) Step(ctx context.Context) error {
	r.ensureSorted()
	for _, s := range r.systems {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Update(ctx, r.step); err != nil {
			return fmt.Errorf("step %d: %w", r.step, err)
		}
	}
	r.step++
	return nil
}

// Run performs n steps.
func (r *Runner) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := r.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Steps returns the number of completed steps.
func (r *Runner) Steps() int { return r.step }

func (r *Runner) ensureSorted() {
	if !r.sorted {
		sort.SliceStable(r.systems, func(i, j int) bool {
			return r.systems[i].Phase() < r.systems[j].Phase()
		})
		r.sorted = true
	}
}
