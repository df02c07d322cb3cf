package mesh

// Set is an immutable collection of homogeneous entities.
type Set struct {
	ID   SetID
	Name string
	Size int
}

// DeclSet registers a set of size entities.
func (c *Context) DeclSet(size int, name string) (SetID, error) {
	if size < 0 {
		return 0, wrapf(ErrInvalidSet, "set %q: negative size %d", name, size)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	id := SetID(newHandle(len(c.sets), c.generation))
	c.sets = append(c.sets, &Set{ID: id, Name: name, Size: size})
	c.setNames[name] = id
	return id, nil
}

// Set resolves a set handle.
func (c *Context) Set(id SetID) (*Set, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.set(id)
}

func (c *Context) set(id SetID) (*Set, bool) {
	h := handle(id)
	if id.IsZero() || h.generation() != c.generation || h.index() >= len(c.sets) {
		return nil, false
	}
	return c.sets[h.index()], true
}

// SetByName returns the most recently declared set with the given name.
func (c *Context) SetByName(name string) (*Set, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.setNames[name]
	if !ok {
		return nil, false
	}
	return c.set(id)
}

// Sets returns all declared sets in declaration order.
func (c *Context) Sets() []*Set {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*Set(nil), c.sets...)
}
