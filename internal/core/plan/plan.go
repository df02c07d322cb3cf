// Package plan builds and caches execution plans for parallel loops.
//
// A plan splits the loop set into contiguous blocks and colors the entities
// of each block so that no two entities of one color write the same slot of
// an indirectly written dat. Slots written from more than one block are
// listed per block as shared; the executor stages them block-locally and
// merges them after every block has finished.
package plan

import (
	"errors"
	"fmt"
	"sort"

	"github.com/parloop/parloop/internal/core/access"
	"github.com/parloop/parloop/internal/core/mesh"
)

// ErrPlanBuild reports a violated engine invariant, such as a map whose
// arity no longer matches its table. It is not recoverable.
var ErrPlanBuild = errors.New("plan build")

// errStale marks a plan built from an older version of one of its maps.
var errStale = errors.New("stale plan")

// Plan is an immutable schedule for one loop signature.
type Plan struct {
	Set       mesh.SetID
	Size      int
	Signature access.Signature
	Blocks    []Block
	// Staged is set when some argument writes through a map, i.e. when
	// coloring was required.
	Staged bool

	maps []mapStamp
}

// Block is a contiguous range [Start, End) of the loop set.
type Block struct {
	Start, End int
	// Colors lists entity indices per color in increasing color order.
	Colors [][]int
	// Shared lists, per dat, the slots this block writes that other blocks
	// write too.
	Shared []Shared
}

// Shared is the set of cross-block slots of one dat within one block.
type Shared struct {
	Dat   mesh.DatID
	Mode  access.Mode
	Slots []int

	pos map[int]int
}

type mapStamp struct {
	id      mesh.MapID
	arity   int
	version uint32
}

// Pos returns the position of slot within Slots.
func (s *Shared) Pos(slot int) (int, bool) {
	p, ok := s.pos[slot]
	return p, ok
}

func newShared(dat mesh.DatID, mode access.Mode, slots []int) Shared {
	sort.Ints(slots)
	pos := make(map[int]int, len(slots))
	for i, s := range slots {
		pos[s] = i
	}
	return Shared{Dat: dat, Mode: mode, Slots: slots, pos: pos}
}

// Size returns the number of entities in the block.
func (b *Block) Size() int { return b.End - b.Start }

// MaxColors returns the largest color count over all blocks.
func (p *Plan) MaxColors() int {
	n := 0
	for i := range p.Blocks {
		n = max(n, len(p.Blocks[i].Colors))
	}
	return n
}

// SharedSlots returns the number of staged cross-block slots.
func (p *Plan) SharedSlots() int {
	n := 0
	for i := range p.Blocks {
		for _, s := range p.Blocks[i].Shared {
			n += len(s.Slots)
		}
	}
	return n
}

// Check verifies that the maps the plan was built from are unchanged. It
// returns ErrPlanBuild when a map's arity moved and errStale when a map was
// renumbered.
func (p *Plan) Check(c *mesh.Context) error {
	for _, st := range p.maps {
		m, ok := c.Map(st.id)
		if !ok {
			return errStale
		}
		if m.Arity != st.arity || len(m.Table) != st.arity*setSize(c, m.From) {
			return fmt.Errorf("%w: map %q arity changed from %d to %d", ErrPlanBuild, m.Name, st.arity, m.Arity)
		}
		if m.Version != st.version {
			return errStale
		}
	}
	return nil
}

func setSize(c *mesh.Context, id mesh.SetID) int {
	s, ok := c.Set(id)
	if !ok {
		return 0
	}
	return s.Size
}
