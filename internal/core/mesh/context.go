package mesh

import (
	"fmt"
	"sync"
)

// Context owns the set, map and dat arenas. Declarations are expected to
// happen before loops run against them; loops only read the arenas.
type Context struct {
	mu         sync.RWMutex
	generation uint32
	sets       []*Set
	maps       []*Map
	dats       []*Dat
	setNames   map[string]SetID
	mapNames   map[string]MapID
	datNames   map[string]DatID
}

func NewContext() *Context {
	c := &Context{generation: 1}
	c.reset()
	return c
}

func (c *Context) reset() {
	c.sets = make([]*Set, 0, 8)
	c.maps = make([]*Map, 0, 8)
	c.dats = make([]*Dat, 0, 16)
	c.setNames = make(map[string]SetID, 8)
	c.mapNames = make(map[string]MapID, 8)
	c.datNames = make(map[string]DatID, 16)
}

// Release drops every declaration. Handles issued before Release no longer
// resolve.
func (c *Context) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.reset()
}

// Counts returns the number of declared sets, maps and dats.
func (c *Context) Counts() (sets, maps, dats int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sets), len(c.maps), len(c.dats)
}

func wrapf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

func errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
