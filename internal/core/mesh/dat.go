package mesh

// Dat is per-entity data bound to one set: Dim elements of Type for every
// entity, stored densely. Loops mutate the storage in place.
type Dat struct {
	ID   DatID
	Name string
	Set  SetID
	Dim  int
	Type ElemType

	data any // []int32 | []int64 | []float32 | []float64
}

// Len returns the number of stored elements (set size times Dim).
func (d *Dat) Len() int {
	_, n := storageOf(d.data)
	return n
}

// Storage returns the live backing slice as an untyped value.
func (d *Dat) Storage() any { return d.data }

// Values returns the live backing slice of d, or nil when T does not match
// the dat's element type.
func Values[T Number](d *Dat) []T {
	v, _ := d.data.([]T)
	return v
}

// Snapshot returns a copy of the dat contents.
func Snapshot[T Number](d *Dat) []T {
	return append([]T(nil), Values[T](d)...)
}

// DeclDat registers a dat. init must be nil (zero-filled) or a slice of the
// Go type matching typ with set size times dim elements. Dat names are
// unique within a context.
func (c *Context) DeclDat(set SetID, dim int, typ ElemType, init any, name string) (DatID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.set(set)
	if !ok {
		return 0, wrapf(ErrShapeMismatch, "dat %q: unknown set", name)
	}
	if _, taken := c.datNames[name]; taken {
		return 0, wrapf(ErrDuplicateName, "dat %q", name)
	}
	if dim < 1 {
		return 0, wrapf(ErrShapeMismatch, "dat %q: dim %d < 1", name, dim)
	}
	if typ.Size() == 0 {
		return 0, wrapf(ErrShapeMismatch, "dat %q: unknown element type", name)
	}
	want := s.Size * dim
	var data any
	if init == nil {
		data = newStorage(typ, want)
	} else {
		got, n := storageOf(init)
		if got != typ {
			return 0, wrapf(ErrShapeMismatch, "dat %q: initial values are %s, declared %s", name, got, typ)
		}
		if n != want {
			return 0, wrapf(ErrShapeMismatch, "dat %q: %d initial values, want %d (%d x %d)", name, n, want, s.Size, dim)
		}
		data = cloneStorage(init)
	}

	id := DatID(newHandle(len(c.dats), c.generation))
	c.dats = append(c.dats, &Dat{
		ID:   id,
		Name: name,
		Set:  set,
		Dim:  dim,
		Type: typ,
		data: data,
	})
	c.datNames[name] = id
	return id, nil
}

// DeclDatOf is the typed form of DeclDat.
func DeclDatOf[T Number](c *Context, set SetID, dim int, init []T, name string) (DatID, error) {
	if init == nil {
		return c.DeclDat(set, dim, TypeOf[T](), nil, name)
	}
	return c.DeclDat(set, dim, TypeOf[T](), init, name)
}

// Dat resolves a dat handle.
func (c *Context) Dat(id DatID) (*Dat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dat(id)
}

func (c *Context) dat(id DatID) (*Dat, bool) {
	h := handle(id)
	if id.IsZero() || h.generation() != c.generation || h.index() >= len(c.dats) {
		return nil, false
	}
	return c.dats[h.index()], true
}

// DatByName returns the dat declared under name.
func (c *Context) DatByName(name string) (*Dat, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.datNames[name]
	if !ok {
		return nil, false
	}
	return c.dat(id)
}

// Dats returns all declared dats in declaration order.
func (c *Context) Dats() []*Dat {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Dat(nil), c.dats...)
}

// Load overwrites the contents of a dat, for restoring checkpoints. It must
// not run concurrently with a loop touching the dat.
func (c *Context) Load(id DatID, values any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dat(id)
	if !ok {
		return wrapf(ErrUnknownHandle, "load: dat %d", id)
	}
	got, n := storageOf(values)
	if got != d.Type || n != d.Len() {
		return wrapf(ErrShapeMismatch, "load %q: got %d %s values, want %d %s", d.Name, n, got, d.Len(), d.Type)
	}
	switch dst := d.data.(type) {
	case []int32:
		copy(dst, values.([]int32))
	case []int64:
		copy(dst, values.([]int64))
	case []float32:
		copy(dst, values.([]float32))
	case []float64:
		copy(dst, values.([]float64))
	}
	return nil
}
