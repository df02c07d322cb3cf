package access

import (
	"strconv"

	"github.com/parloop/parloop/internal/core/mesh"
)

// Signature is the plan cache key of a loop: the target set followed by
// the ordered (dat, map, component, dim, type, mode) tuple of every arg.
type Signature string

// Sign computes the signature of a loop call.
func Sign(target mesh.SetID, args []Arg) Signature {
	b := make([]byte, 0, 16+len(args)*32)
	b = strconv.AppendUint(b, uint64(target), 36)
	for _, a := range args {
		b = append(b, '|')
		b = strconv.AppendUint(b, uint64(a.Dat), 36)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(a.Map), 36)
		b = append(b, ':')
		b = strconv.AppendInt(b, int64(a.Index), 10)
		b = append(b, ':')
		b = strconv.AppendInt(b, int64(a.Dim), 10)
		b = append(b, ':')
		b = strconv.AppendUint(b, uint64(a.Type), 10)
		b = append(b, ':')
		b = append(b, a.Mode.String()...)
	}
	return Signature(b)
}
