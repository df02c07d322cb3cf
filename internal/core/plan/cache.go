package plan

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/parloop/parloop/internal/core/access"
	"github.com/parloop/parloop/internal/core/mesh"
)

// Cache memoizes plans by loop signature. Concurrent misses on the same
// signature build once. A positive capacity bounds the cache with LRU
// eviction; zero keeps every plan.
type Cache struct {
	mesh     *mesh.Context
	opts     Options
	capacity int
	log      *zap.Logger

	mu      sync.Mutex
	entries map[access.Signature]*list.Element
	lru     *list.List // front = most recently used
	group   singleflight.Group

	hits      atomic.Uint64
	misses    atomic.Uint64
	builds    atomic.Uint64
	evictions atomic.Uint64
}

type cacheEntry struct {
	key  access.Signature
	plan *Plan
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Entries   int
	Hits      uint64
	Misses    uint64
	Builds    uint64
	Evictions uint64
}

func NewCache(c *mesh.Context, opts Options, capacity int, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		mesh:     c,
		opts:     opts,
		capacity: capacity,
		log:      log,
		entries:  make(map[access.Signature]*list.Element),
		lru:      list.New(),
	}
}

// GetOrBuild returns the plan for running args over target, validating and
// building it on a miss. hit reports whether a cached plan was reused.
func (c *Cache) GetOrBuild(ctx context.Context, target mesh.SetID, args []access.Arg) (p *Plan, hit bool, err error) {
	key := access.Sign(target, args)
	if p, err := c.lookup(key); p != nil || err != nil {
		if err != nil {
			return nil, false, err
		}
		c.hits.Add(1)
		return p, true, nil
	}
	c.misses.Add(1)

	v, err, _ := c.group.Do(string(key), func() (any, error) {
		// A flight that finished just before this one may have stored it.
		if p, err := c.lookup(key); p != nil || err != nil {
			return p, err
		}
		return c.build(ctx, key, target, args)
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*Plan), false, nil
}

func (c *Cache) build(ctx context.Context, key access.Signature, target mesh.SetID, args []access.Arg) (*Plan, error) {
	ctx, span := otel.Tracer("parloop/plan").Start(ctx, "plan.Build")
	defer span.End()

	if err := access.Validate(c.mesh, target, args); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return nil, err
	}
	p, err := Build(ctx, c.mesh, target, args, c.opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return nil, err
	}
	c.builds.Add(1)
	span.SetAttributes(
		attribute.Int("plan.blocks", len(p.Blocks)),
		attribute.Int("plan.colors", p.MaxColors()),
		attribute.Int("plan.shared_slots", p.SharedSlots()),
	)
	c.log.Debug("plan built",
		zap.String("signature", string(key)),
		zap.Int("entities", p.Size),
		zap.Int("blocks", len(p.Blocks)),
		zap.Int("colors", p.MaxColors()),
		zap.Int("shared_slots", p.SharedSlots()),
	)
	c.store(key, p)
	return p, nil
}

// lookup returns a usable cached plan. Stale plans are dropped and reported
// as a miss; broken invariants surface as ErrPlanBuild.
func (c *Cache) lookup(key access.Signature) (*Plan, error) {
	c.mu.Lock()
	el, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, nil
	}
	c.lru.MoveToFront(el)
	p := el.Value.(*cacheEntry).plan
	c.mu.Unlock()

	switch err := p.Check(c.mesh); {
	case err == nil:
		return p, nil
	case errors.Is(err, errStale):
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur.Value.(*cacheEntry).plan == p {
			c.lru.Remove(cur)
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.log.Debug("plan invalidated", zap.String("signature", string(key)))
		return nil, nil
	default:
		return nil, err
	}
}

func (c *Cache) store(key access.Signature, p *Plan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).plan = p
		c.lru.MoveToFront(el)
		return
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, plan: p})
	for c.capacity > 0 && c.lru.Len() > c.capacity {
		last := c.lru.Back()
		c.lru.Remove(last)
		delete(c.entries, last.Value.(*cacheEntry).key)
		c.evictions.Add(1)
	}
}

// Purge drops every cached plan.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[access.Signature]*list.Element)
	c.lru.Init()
}

// Len returns the number of cached plans.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache) Stats() Stats {
	return Stats{
		Entries:   c.Len(),
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Builds:    c.builds.Load(),
		Evictions: c.evictions.Load(),
	}
}
