// Package engine is the process-level entry point: it owns the mesh
// registries, the plan cache and the executor, and runs parallel loops.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/parloop/parloop/internal/config"
	"github.com/parloop/parloop/internal/core/access"
	"github.com/parloop/parloop/internal/core/event"
	"github.com/parloop/parloop/internal/core/loop"
	"github.com/parloop/parloop/internal/core/mesh"
	"github.com/parloop/parloop/internal/core/plan"
	"github.com/parloop/parloop/internal/telemetry"
)

// ErrClosed is returned by every operation after Exit.
var ErrClosed = errors.New("engine closed")

// Engine runs parallel loops over the sets, maps and dats declared in it.
type Engine struct {
	mesh  *mesh.Context
	cache *plan.Cache
	exec  *loop.Executor
	bus   *event.Bus
	log   *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// Init establishes empty registries configured by cfg. bus may be nil when
// nobody listens for loop events.
func Init(cfg config.EngineConfig, log *zap.Logger, bus *event.Bus) (*Engine, error) {
	if log == nil {
		log = zap.NewNop()
	}
	policy, err := loop.ParseFaultPolicy(cfg.FaultPolicy)
	if err != nil {
		return nil, err
	}
	c := mesh.NewContext()
	exec := loop.NewExecutor(c, loop.Options{Workers: cfg.Workers, Policy: policy}, log)
	opts := plan.Options{
		BlockSize:          cfg.BlockSize,
		Workers:            exec.Workers(),
		RejectSharedWrites: cfg.CrossBlockWrites == config.CrossBlockReject,
	}
	e := &Engine{
		mesh:  c,
		cache: plan.NewCache(c, opts, cfg.PlanCacheSize, log),
		exec:  exec,
		bus:   bus,
		log:   log,
	}
	log.Info("engine initialised",
		zap.Int("workers", exec.Workers()),
		zap.Int("block_size", cfg.BlockSize),
		zap.Int("plan_cache_size", cfg.PlanCacheSize),
		zap.String("fault_policy", policy.String()),
		zap.Bool("reject_shared_writes", opts.RejectSharedWrites),
	)
	return e, nil
}

// Mesh exposes the registries for inspection and bulk declaration.
func (e *Engine) Mesh() *mesh.Context { return e.mesh }

// Workers is the number of blocks run concurrently.
func (e *Engine) Workers() int { return e.exec.Workers() }

// PlanStats returns the plan cache counters.
func (e *Engine) PlanStats() plan.Stats { return e.cache.Stats() }

func (e *Engine) DeclSet(size int, name string) (mesh.SetID, error) {
	if err := e.alive(); err != nil {
		return 0, err
	}
	id, err := e.mesh.DeclSet(size, name)
	if err != nil {
		return 0, err
	}
	e.log.Debug("set declared", zap.String("name", name), zap.Int("size", size))
	return id, nil
}

func (e *Engine) DeclMap(from, to mesh.SetID, arity int, table []int, name string, opts ...mesh.MapOption) (mesh.MapID, error) {
	if err := e.alive(); err != nil {
		return 0, err
	}
	id, err := e.mesh.DeclMap(from, to, arity, table, name, opts...)
	if err != nil {
		return 0, err
	}
	e.log.Debug("map declared", zap.String("name", name), zap.Int("arity", arity))
	return id, nil
}

func (e *Engine) DeclDat(set mesh.SetID, dim int, typ mesh.ElemType, init any, name string) (mesh.DatID, error) {
	if err := e.alive(); err != nil {
		return 0, err
	}
	id, err := e.mesh.DeclDat(set, dim, typ, init, name)
	if err != nil {
		return 0, err
	}
	e.log.Debug("dat declared", zap.String("name", name), zap.Int("dim", dim), zap.Stringer("type", typ))
	return id, nil
}

// ParLoop runs kernel once per entity of set with the given arguments.
// The plan for this access pattern is built on first use and reused by
// later calls with the same signature.
func (e *Engine) ParLoop(ctx context.Context, kernel loop.Kernel, name string, set mesh.SetID, args ...access.Arg) (*loop.Report, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return nil, ErrClosed
	}

	ctx, span := telemetry.Tracer("engine").Start(ctx, "loop.Run")
	defer span.End()
	span.SetAttributes(attribute.String("loop.name", name), attribute.Int("loop.args", len(args)))

	p, hit, err := e.cache.GetOrBuild(ctx, set, args)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan")
		e.emit(event.LoopCompleted{Loop: name, Set: set, Err: err})
		return nil, fmt.Errorf("loop %q: %w", name, err)
	}
	if !hit {
		event.Emit(e.bus, event.PlanBuilt{
			Loop:   name,
			Set:    set,
			Blocks: len(p.Blocks),
			Colors: p.MaxColors(),
			Shared: p.SharedSlots(),
		})
	}

	rep, err := e.exec.Run(ctx, kernel, name, p, args)
	if rep != nil {
		rep.PlanHit = hit
		span.SetAttributes(
			attribute.Bool("plan.hit", hit),
			attribute.Int("loop.executed", rep.Executed),
			attribute.Int("loop.faults", len(rep.Faults)),
		)
		e.emit(event.LoopCompleted{
			Loop:     name,
			Set:      set,
			Entities: rep.Entities,
			Executed: rep.Executed,
			Faults:   len(rep.Faults),
			PlanHit:  hit,
			Elapsed:  rep.Elapsed,
			Err:      err,
		})
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "execute")
		return rep, err
	}
	e.log.Debug("loop done",
		zap.String("loop", name),
		zap.Bool("plan_hit", hit),
		zap.Int("executed", rep.Executed),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}

func (e *Engine) emit(ev event.LoopCompleted) {
	event.Emit(e.bus, ev)
}

// Exit releases every set, map and dat and drops all cached plans. Handles
// obtained before Exit stop resolving; later calls return ErrClosed.
func (e *Engine) Exit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	st := e.cache.Stats()
	e.cache.Purge()
	e.mesh.Release()
	e.log.Info("engine released",
		zap.Uint64("plan_builds", st.Builds),
		zap.Uint64("plan_hits", st.Hits),
	)
}

func (e *Engine) alive() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return ErrClosed
	}
	return nil
}
