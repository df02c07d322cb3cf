package mesh

// handle encodes a 1-based arena index in the lower 32 bits and the owning
// context generation in the upper bits. The zero handle is never issued, so a
// zero MapID reads as "no map" in access descriptors.
type handle uint64

func newHandle(index int, generation uint32) handle {
	return handle(uint64(generation)<<32 | uint64(uint32(index+1)))
}

func (h handle) index() int         { return int(uint32(h)) - 1 }
func (h handle) generation() uint32 { return uint32(h >> 32) }

// SetID identifies a declared set.
type SetID handle

// MapID identifies a declared mapping. The zero value means direct access.
type MapID handle

// DatID identifies a declared dat.
type DatID handle

func (id SetID) IsZero() bool { return id == 0 }
func (id MapID) IsZero() bool { return id == 0 }
func (id DatID) IsZero() bool { return id == 0 }

// Index returns the arena slot of the handle, or -1 for the zero handle.
func (id SetID) Index() int { return handle(id).index() }
func (id MapID) Index() int { return handle(id).index() }
func (id DatID) Index() int { return handle(id).index() }
