package plan

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/parloop/parloop/internal/core/access"
	"github.com/parloop/parloop/internal/core/mesh"
)

// Options control plan construction.
type Options struct {
	// BlockSize is the number of entities per block; zero spreads the set
	// evenly over Workers.
	BlockSize int
	// Workers bounds how many blocks are colored concurrently.
	Workers int
	// RejectSharedWrites fails the build when Write or ReadWrite arguments
	// from different blocks target the same slot, instead of letting the
	// later block win at merge time.
	RejectSharedWrites bool
}

// conflictArg is an argument whose written slots take part in coloring.
type conflictArg struct {
	ordinal int // index of its dat among staged dats
	direct  bool
	index   int
	table   []int32
	arity   int
}

func (a *conflictArg) appendKeys(e int, dst []uint64) []uint64 {
	hi := uint64(a.ordinal) << 32
	switch {
	case a.direct:
		return append(dst, hi|uint64(e))
	case a.index == access.All:
		for _, s := range a.table[e*a.arity : (e+1)*a.arity] {
			dst = append(dst, hi|uint64(s))
		}
		return dst
	default:
		return append(dst, hi|uint64(a.table[e*a.arity+a.index]))
	}
}

// Build computes the plan for running args over target. The arguments are
// assumed to be validated.
func Build(ctx context.Context, c *mesh.Context, target mesh.SetID, args []access.Arg, opt Options) (*Plan, error) {
	set, ok := c.Set(target)
	if !ok {
		return nil, fmt.Errorf("%w: unknown loop set", access.ErrIncompatibleAccess)
	}
	p := &Plan{
		Set:       target,
		Size:      set.Size,
		Signature: access.Sign(target, args),
	}

	// Stamp the maps and find the dats written through a map.
	staged := make(map[mesh.DatID]int)
	var stagedDats []mesh.DatID
	stampSeen := make(map[mesh.MapID]bool)
	for _, a := range args {
		if a.IsDirect() {
			continue
		}
		m, ok := c.Map(a.Map)
		if !ok {
			return nil, fmt.Errorf("%w: unknown map", access.ErrIncompatibleAccess)
		}
		if len(m.Table) != m.Arity*set.Size {
			return nil, fmt.Errorf("%w: map %q has %d entries for arity %d over %d entities",
				ErrPlanBuild, m.Name, len(m.Table), m.Arity, set.Size)
		}
		if !stampSeen[a.Map] {
			stampSeen[a.Map] = true
			p.maps = append(p.maps, mapStamp{id: a.Map, arity: m.Arity, version: m.Version})
		}
		if a.Mode.Writes() {
			if _, ok := staged[a.Dat]; !ok {
				staged[a.Dat] = len(stagedDats)
				stagedDats = append(stagedDats, a.Dat)
			}
		}
	}
	p.Staged = len(stagedDats) > 0

	ranges := partition(set.Size, opt.BlockSize, opt.Workers)
	p.Blocks = make([]Block, len(ranges))
	for i, r := range ranges {
		p.Blocks[i] = Block{Start: r[0], End: r[1]}
	}
	if !p.Staged {
		for i := range p.Blocks {
			p.Blocks[i].Colors = singleColor(p.Blocks[i].Start, p.Blocks[i].End)
		}
		return p, nil
	}

	var conflicts []conflictArg
	modes := make([]access.Mode, len(stagedDats))
	for _, a := range args {
		ord, ok := staged[a.Dat]
		if !ok || !a.Mode.Writes() {
			continue
		}
		modes[ord] = a.Mode
		ca := conflictArg{ordinal: ord, direct: a.IsDirect(), index: a.Index}
		if !ca.direct {
			m, _ := c.Map(a.Map)
			ca.table, ca.arity = m.Table, m.Arity
		}
		conflicts = append(conflicts, ca)
	}
	keys := func(e int, dst []uint64) []uint64 {
		for i := range conflicts {
			dst = conflicts[i].appendKeys(e, dst)
		}
		return dst
	}

	g, gctx := errgroup.WithContext(ctx)
	if opt.Workers > 0 {
		g.SetLimit(opt.Workers)
	}
	for i := range p.Blocks {
		b := &p.Blocks[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			b.Colors = colorBlock(b.Start, b.End, keys)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := markShared(p, keys, stagedDats, modes, opt); err != nil {
		return nil, err
	}
	return p, nil
}

// markShared records, for every block, the written slots some other block
// writes as well.
func markShared(p *Plan, keys keyFunc, dats []mesh.DatID, modes []access.Mode, opt Options) error {
	if len(p.Blocks) < 2 {
		return nil
	}
	const multi = -1
	owner := make(map[uint64]int)
	var buf []uint64
	for bi := range p.Blocks {
		b := &p.Blocks[bi]
		for e := b.Start; e < b.End; e++ {
			buf = keys(e, buf[:0])
			for _, k := range buf {
				prev, seen := owner[k]
				switch {
				case !seen:
					owner[k] = bi
				case prev != bi && prev != multi:
					owner[k] = multi
				}
			}
		}
	}

	for bi := range p.Blocks {
		b := &p.Blocks[bi]
		perDat := make(map[int]map[int]struct{})
		for e := b.Start; e < b.End; e++ {
			buf = keys(e, buf[:0])
			for _, k := range buf {
				if owner[k] != multi {
					continue
				}
				ord, slot := int(k>>32), int(uint32(k))
				if opt.RejectSharedWrites && modes[ord] != access.Inc {
					return fmt.Errorf("%w: slot %d written by several blocks with %s",
						access.ErrIncompatibleAccess, slot, modes[ord])
				}
				if perDat[ord] == nil {
					perDat[ord] = make(map[int]struct{})
				}
				perDat[ord][slot] = struct{}{}
			}
		}
		for ord, dat := range dats {
			set := perDat[ord]
			if len(set) == 0 {
				continue
			}
			slots := make([]int, 0, len(set))
			for s := range set {
				slots = append(slots, s)
			}
			b.Shared = append(b.Shared, newShared(dat, modes[ord], slots))
		}
	}
	return nil
}
