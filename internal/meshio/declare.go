package meshio

import (
	"fmt"

	"github.com/parloop/parloop/internal/core/access"
	"github.com/parloop/parloop/internal/core/mesh"
)

// Loop is a resolved loop of the schedule, ready to hand to the engine.
type Loop struct {
	Name   string
	Kernel string
	Set    mesh.SetID
	Args   []access.Arg
}

// Declare registers the program's sets, maps and dats in c in file order
// and resolves the loop schedule against them. Names are looked up among
// everything declared so far, including entries declared by earlier calls.
func (p *Program) Declare(c *mesh.Context) ([]Loop, error) {
	for _, s := range p.Sets {
		if _, err := c.DeclSet(s.Size, s.Name); err != nil {
			return nil, err
		}
	}
	for _, m := range p.Maps {
		from, err := setByName(c, m.From)
		if err != nil {
			return nil, fmt.Errorf("map %q: %w", m.Name, err)
		}
		to, err := setByName(c, m.To)
		if err != nil {
			return nil, fmt.Errorf("map %q: %w", m.Name, err)
		}
		if _, err := c.DeclMap(from, to, m.Arity, m.Table, m.Name, mesh.WithIndexBase(m.IndexBase)); err != nil {
			return nil, err
		}
	}
	for _, d := range p.Dats {
		if err := declareDat(c, d); err != nil {
			return nil, err
		}
	}

	loops := make([]Loop, 0, len(p.Loops))
	for _, l := range p.Loops {
		set, err := setByName(c, l.Set)
		if err != nil {
			return nil, fmt.Errorf("loop %q: %w", l.Name, err)
		}
		args := make([]access.Arg, 0, len(l.Args))
		for i, a := range l.Args {
			arg, err := resolveArg(c, a)
			if err != nil {
				return nil, fmt.Errorf("loop %q arg %d: %w", l.Name, i, err)
			}
			args = append(args, arg)
		}
		loops = append(loops, Loop{Name: l.Name, Kernel: l.Kernel, Set: set, Args: args})
	}
	return loops, nil
}

func setByName(c *mesh.Context, name string) (mesh.SetID, error) {
	s, ok := c.SetByName(name)
	if !ok {
		return 0, fmt.Errorf("set %q: %w", name, mesh.ErrUnknownHandle)
	}
	return s.ID, nil
}

func declareDat(c *mesh.Context, d DatEntry) error {
	set, err := setByName(c, d.Set)
	if err != nil {
		return fmt.Errorf("dat %q: %w", d.Name, err)
	}
	typ, err := mesh.ParseElemType(d.Type)
	if err != nil {
		return fmt.Errorf("dat %q: %w", d.Name, err)
	}
	var init any
	if len(d.Values) > 0 {
		init = convertValues(typ, d.Values)
	}
	_, err = c.DeclDat(set, d.Dim, typ, init, d.Name)
	return err
}

func convertValues(typ mesh.ElemType, vs []float64) any {
	switch typ {
	case mesh.Int32:
		return convert[int32](vs)
	case mesh.Int64:
		return convert[int64](vs)
	case mesh.Float32:
		return convert[float32](vs)
	default:
		return vs
	}
}

func convert[T mesh.Number](vs []float64) []T {
	out := make([]T, len(vs))
	for i, v := range vs {
		out[i] = T(v)
	}
	return out
}

func resolveArg(c *mesh.Context, a ArgEntry) (access.Arg, error) {
	d, ok := c.DatByName(a.Dat)
	if !ok {
		return access.Arg{}, fmt.Errorf("dat %q: %w", a.Dat, mesh.ErrUnknownHandle)
	}
	mode, err := access.ParseMode(a.Mode)
	if err != nil {
		return access.Arg{}, err
	}
	var typ mesh.ElemType
	if a.Type != "" {
		if typ, err = mesh.ParseElemType(a.Type); err != nil {
			return access.Arg{}, err
		}
	}
	var m mesh.MapID
	if a.Map != "" {
		mp, ok := c.MapByName(a.Map)
		if !ok {
			return access.Arg{}, fmt.Errorf("map %q: %w", a.Map, mesh.ErrUnknownHandle)
		}
		m = mp.ID
	}
	idx := access.All
	if a.Index != nil {
		idx = int(*a.Index)
	}
	return access.Dat(d.ID, idx, m, a.Dim, typ, mode), nil
}
