// Package loop executes parallel loops over an execution plan.
//
// Blocks run concurrently. Inside a block colors run in increasing order
// with a barrier between them; entities of one color are independent. Each
// entity's arguments are gathered into per-block scratch buffers, the
// kernel runs, and outputs are committed: Write and ReadWrite overwrite,
// Inc accumulates. Slots shared between blocks are staged per block and
// merged in block order once every block is done, so overlapping writes
// resolve to the last block and increments are summed deterministically.
package loop

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/parloop/parloop/internal/core/access"
	"github.com/parloop/parloop/internal/core/mesh"
	"github.com/parloop/parloop/internal/core/plan"
)

// Options configure an Executor.
type Options struct {
	// Workers bounds the number of blocks running at once; zero means
	// GOMAXPROCS.
	Workers int
	Policy  FaultPolicy
}

// Report summarises one loop execution.
type Report struct {
	Loop        string
	Entities    int
	Blocks      int
	Colors      int
	SharedSlots int
	Executed    int
	Faults      []*KernelFault
	PlanHit     bool
	Elapsed     time.Duration
}

// Executor runs plans against the dats of a mesh context. It is safe for
// concurrent use as long as concurrent loops do not write the same dat.
type Executor struct {
	mesh    *mesh.Context
	workers int
	policy  FaultPolicy
	log     *zap.Logger

	// order, when set, reorders the entities of a color before they run.
	order func(color []int) []int
}

func NewExecutor(c *mesh.Context, opts Options, log *zap.Logger) *Executor {
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{mesh: c, workers: opts.Workers, policy: opts.Policy, log: log}
}

func (x *Executor) Workers() int        { return x.workers }
func (x *Executor) Policy() FaultPolicy { return x.policy }

// run is the shared state of one Run call.
type run struct {
	name     string
	kernel   Kernel
	plan     *plan.Plan
	binds    []*binding
	dats     map[mesh.DatID]*mesh.Dat
	stages   [][]stager
	executed atomic.Int64
	aborted  atomic.Bool

	mu     sync.Mutex
	faults []*KernelFault
}

// Run executes kernel once per entity of p.Set. args must be the
// descriptors p was built for; any other list is rejected before a kernel
// runs.
func (x *Executor) Run(ctx context.Context, kernel Kernel, name string, p *plan.Plan, args []access.Arg) (*Report, error) {
	start := time.Now()
	if err := p.Check(x.mesh); err != nil {
		return nil, err
	}
	if access.Sign(p.Set, args) != p.Signature {
		return nil, fmt.Errorf("%w: loop %q: arguments do not match the plan", access.ErrIncompatibleAccess, name)
	}
	binds, dats, err := x.bind(args)
	if err != nil {
		return nil, err
	}
	r := &run{
		name:   name,
		kernel: kernel,
		plan:   p,
		binds:  binds,
		dats:   dats,
		stages: make([][]stager, len(p.Blocks)),
	}

	var g errgroup.Group
	g.SetLimit(x.workers)
	for bi := range p.Blocks {
		if ctx.Err() != nil || r.aborted.Load() {
			break
		}
		g.Go(func() error {
			return x.runBlock(ctx, r, bi)
		})
	}
	runErr := g.Wait()

	// Merge whatever the blocks committed, in block order.
	for _, stages := range r.stages {
		for _, st := range stages {
			st.merge()
		}
	}

	sort.Slice(r.faults, func(i, j int) bool { return r.faults[i].Entity < r.faults[j].Entity })
	rep := &Report{
		Loop:        name,
		Entities:    p.Size,
		Blocks:      len(p.Blocks),
		Colors:      p.MaxColors(),
		SharedSlots: p.SharedSlots(),
		Executed:    int(r.executed.Load()),
		Faults:      r.faults,
		Elapsed:     time.Since(start),
	}

	if runErr == nil {
		runErr = ctx.Err()
	}
	if runErr != nil {
		return rep, fmt.Errorf("loop %q interrupted: %w", name, runErr)
	}
	if r.aborted.Load() {
		return rep, r.faults[0]
	}
	for _, f := range r.faults {
		x.log.Warn("kernel fault isolated",
			zap.String("loop", name),
			zap.Int("entity", f.Entity),
			zap.Error(f.Err),
		)
	}
	return rep, nil
}

func (x *Executor) bind(args []access.Arg) ([]*binding, map[mesh.DatID]*mesh.Dat, error) {
	binds := make([]*binding, len(args))
	dats := make(map[mesh.DatID]*mesh.Dat, len(args))
	for i, a := range args {
		d, ok := x.mesh.Dat(a.Dat)
		if !ok {
			return nil, nil, fmt.Errorf("%w: arg %d: unknown dat", access.ErrIncompatibleAccess, i)
		}
		dats[a.Dat] = d
		b := &binding{dat: d, mode: a.Mode, dim: d.Dim, direct: a.IsDirect(), index: a.Index, count: 1}
		if !b.direct {
			m, ok := x.mesh.Map(a.Map)
			if !ok {
				return nil, nil, fmt.Errorf("%w: arg %d: unknown map", access.ErrIncompatibleAccess, i)
			}
			b.table, b.arity = m.Table, m.Arity
			b.count = a.Count(m.Arity)
		}
		binds[i] = b
	}
	return binds, dats, nil
}

func (x *Executor) runBlock(ctx context.Context, r *run, bi int) error {
	b := &r.plan.Blocks[bi]

	staged := make(map[mesh.DatID]stager, len(b.Shared))
	stages := make([]stager, 0, len(b.Shared))
	for i := range b.Shared {
		sh := &b.Shared[i]
		st := newStage(r.dats[sh.Dat], sh)
		staged[sh.Dat] = st
		stages = append(stages, st)
	}
	r.stages[bi] = stages

	lanes := make([]lane, len(r.binds))
	args := make([]Arg, len(r.binds))
	for i, bd := range r.binds {
		lanes[i] = newLane(bd, staged[bd.dat.ID])
		args[i] = lanes[i].arg()
	}

	executed := 0
	defer func() { r.executed.Add(int64(executed)) }()

	for _, color := range b.Colors {
		// Color barrier: the only point where a loop may stop.
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.aborted.Load() {
			return nil
		}
		entities := color
		if x.order != nil {
			entities = x.order(append([]int(nil), color...))
		}
		for _, e := range entities {
			for _, l := range lanes {
				l.gather(e)
			}
			if err := invoke(r.kernel, args); err != nil {
				r.fault(&KernelFault{Loop: r.name, Entity: e, Err: err}, x.policy)
				continue
			}
			for _, l := range lanes {
				l.commit(e)
			}
			executed++
		}
	}
	return nil
}

func (r *run) fault(f *KernelFault, policy FaultPolicy) {
	r.mu.Lock()
	r.faults = append(r.faults, f)
	r.mu.Unlock()
	if policy == Abort {
		r.aborted.Store(true)
	}
}
