package access

import "github.com/parloop/parloop/internal/core/mesh"

// All selects every destination of a map for an indirect argument.
const All = -1

// Arg describes one kernel argument: which dat it touches, through which
// map (zero MapID for direct access), which map component, and how.
// Dim and Type are the shape the kernel expects; zero values skip the check.
type Arg struct {
	Dat   mesh.DatID
	Map   mesh.MapID
	Index int
	Dim   int
	Type  mesh.ElemType
	Mode  Mode
}

// Direct accesses the entity's own slot of a dat bound to the loop set.
func Direct(dat mesh.DatID, mode Mode) Arg {
	return Arg{Dat: dat, Index: All, Mode: mode}
}

// IndirectAll accesses all destinations of m, concatenated.
func IndirectAll(dat mesh.DatID, m mesh.MapID, mode Mode) Arg {
	return Arg{Dat: dat, Map: m, Index: All, Mode: mode}
}

// IndirectOne accesses the idx-th destination of m.
func IndirectOne(dat mesh.DatID, m mesh.MapID, idx int, mode Mode) Arg {
	return Arg{Dat: dat, Map: m, Index: idx, Mode: mode}
}

// Dat builds an argument with an explicit kernel-side shape, checked
// against the dat at validation time. A zero map means direct access.
func Dat(dat mesh.DatID, idx int, m mesh.MapID, dim int, typ mesh.ElemType, mode Mode) Arg {
	if m.IsZero() {
		idx = All
	}
	return Arg{Dat: dat, Map: m, Index: idx, Dim: dim, Type: typ, Mode: mode}
}

// IsDirect reports whether the argument bypasses any map.
func (a Arg) IsDirect() bool { return a.Map.IsZero() }

// IsIndirectWrite reports whether the argument writes through a map.
func (a Arg) IsIndirectWrite() bool { return !a.IsDirect() && a.Mode.Writes() }

// Count is the number of dat slots the argument spans per entity.
func (a Arg) Count(arity int) int {
	if a.IsDirect() || a.Index != All {
		return 1
	}
	return arity
}
