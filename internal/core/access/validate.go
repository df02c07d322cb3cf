package access

import (
	"errors"
	"fmt"

	"github.com/parloop/parloop/internal/core/mesh"
)

// ErrIncompatibleAccess reports descriptors that do not fit the loop set or
// their dat.
var ErrIncompatibleAccess = errors.New("incompatible access")

func incompatible(i int, format string, args ...any) error {
	return fmt.Errorf("%w: arg %d: %s", ErrIncompatibleAccess, i, fmt.Sprintf(format, args...))
}

// Validate checks args against the target set of a loop.
func Validate(c *mesh.Context, target mesh.SetID, args []Arg) error {
	if _, ok := c.Set(target); !ok {
		return fmt.Errorf("%w: unknown loop set", ErrIncompatibleAccess)
	}

	modes := make(map[mesh.DatID]Mode, len(args))
	for i, a := range args {
		if a.Mode < Read || a.Mode > Inc {
			return incompatible(i, "invalid mode %d", a.Mode)
		}
		d, ok := c.Dat(a.Dat)
		if !ok {
			return incompatible(i, "unknown dat")
		}
		if a.IsDirect() {
			if d.Set != target {
				return incompatible(i, "direct dat %q is not bound to the loop set", d.Name)
			}
		} else {
			m, ok := c.Map(a.Map)
			if !ok {
				return incompatible(i, "unknown map for dat %q", d.Name)
			}
			if m.From != target {
				return incompatible(i, "map %q does not start at the loop set", m.Name)
			}
			if m.To != d.Set {
				return incompatible(i, "map %q does not lead to the set of dat %q", m.Name, d.Name)
			}
			if a.Index != All && (a.Index < 0 || a.Index >= m.Arity) {
				return incompatible(i, "component %d out of range for map %q of arity %d", a.Index, m.Name, m.Arity)
			}
		}
		if a.Dim != 0 && a.Dim != d.Dim {
			return incompatible(i, "dat %q has dim %d, kernel expects %d", d.Name, d.Dim, a.Dim)
		}
		if a.Type != mesh.Unknown && a.Type != d.Type {
			return incompatible(i, "dat %q holds %s, kernel expects %s", d.Name, d.Type, a.Type)
		}
		if prev, seen := modes[a.Dat]; seen && prev != a.Mode {
			return incompatible(i, "dat %q accessed as both %s and %s", d.Name, prev, a.Mode)
		}
		modes[a.Dat] = a.Mode
	}
	return nil
}
