package mesh

// Map is a fixed-arity indirection table from one set to another.
// Table holds Arity zero-based destination indices per source entity.
type Map struct {
	ID      MapID
	Name    string
	From    SetID
	To      SetID
	Arity   int
	Table   []int32
	Version uint32
}

// At returns the i-th destination of source entity e.
func (m *Map) At(e, i int) int {
	return int(m.Table[e*m.Arity+i])
}

// Row returns the destinations of source entity e.
func (m *Map) Row(e int) []int32 {
	return m.Table[e*m.Arity : (e+1)*m.Arity]
}

// MapOption tweaks how DeclMap interprets its table.
type MapOption func(*mapOptions)

type mapOptions struct {
	base int
}

// WithIndexBase declares that table entries start at base (1 for
// Fortran-style tables) instead of zero.
func WithIndexBase(base int) MapOption {
	return func(o *mapOptions) { o.base = base }
}

// DeclMap registers a mapping. On error the registry is left unchanged.
func (c *Context) DeclMap(from, to SetID, arity int, table []int, name string, opts ...MapOption) (MapID, error) {
	var o mapOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	src, ok := c.set(from)
	if !ok {
		return 0, wrapf(ErrInvalidMapping, "map %q: unknown source set", name)
	}
	dst, ok := c.set(to)
	if !ok {
		return 0, wrapf(ErrInvalidMapping, "map %q: unknown destination set", name)
	}
	packed, err := packTable(src, dst, arity, table, o.base)
	if err != nil {
		return 0, wrapf(ErrInvalidMapping, "map %q: %v", name, err)
	}

	id := MapID(newHandle(len(c.maps), c.generation))
	c.maps = append(c.maps, &Map{
		ID:    id,
		Name:  name,
		From:  from,
		To:    to,
		Arity: arity,
		Table: packed,
	})
	c.mapNames[name] = id
	return id, nil
}

// ReplaceTable renumbers a map in place. The arity is fixed; the new table
// is validated like DeclMap and the map version is bumped so cached plans
// built from the old table are rebuilt.
func (c *Context) ReplaceTable(id MapID, table []int, opts ...MapOption) error {
	var o mapOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.mapping(id)
	if !ok {
		return wrapf(ErrUnknownHandle, "replace table: map %d", id)
	}
	src, _ := c.set(m.From)
	dst, _ := c.set(m.To)
	packed, err := packTable(src, dst, m.Arity, table, o.base)
	if err != nil {
		return wrapf(ErrInvalidMapping, "map %q: %v", m.Name, err)
	}
	// Loops hold *Map during execution; swap in a fresh value instead of
	// mutating the table they may be reading.
	next := *m
	next.Table = packed
	next.Version++
	c.maps[handle(id).index()] = &next
	return nil
}

func packTable(src, dst *Set, arity int, table []int, base int) ([]int32, error) {
	if arity < 1 {
		return nil, errorf("arity %d < 1", arity)
	}
	if want := src.Size * arity; len(table) != want {
		return nil, errorf("table has %d entries, want %d (%d x %d)", len(table), want, src.Size, arity)
	}
	packed := make([]int32, len(table))
	for i, v := range table {
		v -= base
		if v < 0 || v >= dst.Size {
			return nil, errorf("entry %d = %d out of range for set %q of size %d", i, v+base, dst.Name, dst.Size)
		}
		packed[i] = int32(v)
	}
	return packed, nil
}

// Map resolves a map handle.
func (c *Context) Map(id MapID) (*Map, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mapping(id)
}

func (c *Context) mapping(id MapID) (*Map, bool) {
	h := handle(id)
	if id.IsZero() || h.generation() != c.generation || h.index() >= len(c.maps) {
		return nil, false
	}
	return c.maps[h.index()], true
}

// MapByName returns the most recently declared map with the given name.
func (c *Context) MapByName(name string) (*Map, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.mapNames[name]
	if !ok {
		return nil, false
	}
	return c.mapping(id)
}
