package access

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parloop/parloop/internal/core/mesh"
)

type fixture struct {
	c                *mesh.Context
	nodes, elements  mesh.SetID
	elemNode         mesh.MapID
	coordinates, com mesh.DatID
	nodeRes          mesh.DatID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	c := mesh.NewContext()
	nodes, err := c.DeclSet(4, "nodes")
	require.NoError(t, err)
	elements, err := c.DeclSet(2, "elements")
	require.NoError(t, err)
	m, err := c.DeclMap(elements, nodes, 3, []int{0, 1, 2, 2, 1, 3}, "element-node")
	require.NoError(t, err)
	x, err := mesh.DeclDatOf[float64](c, nodes, 2, nil, "coordinates")
	require.NoError(t, err)
	com, err := mesh.DeclDatOf[float64](c, elements, 2, nil, "com")
	require.NoError(t, err)
	res, err := mesh.DeclDatOf[float64](c, nodes, 1, nil, "res")
	require.NoError(t, err)
	return fixture{c, nodes, elements, m, x, com, res}
}

func TestValidate_Accepts(t *testing.T) {
	f := newFixture(t)
	args := []Arg{
		Dat(f.coordinates, All, f.elemNode, 2, mesh.Float64, Read),
		Dat(f.com, -1, 0, 2, mesh.Float64, Inc),
		IndirectOne(f.nodeRes, f.elemNode, 0, Inc),
		IndirectOne(f.nodeRes, f.elemNode, 2, Inc),
	}
	require.NoError(t, Validate(f.c, f.elements, args))
}

func TestValidate_Rejects(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name   string
		target mesh.SetID
		args   []Arg
	}{
		{"direct dat on other set", f.elements, []Arg{Direct(f.coordinates, Read)}},
		{"map from wrong set", f.nodes, []Arg{IndirectAll(f.coordinates, f.elemNode, Read)}},
		{"map to wrong set", f.elements, []Arg{IndirectAll(f.com, f.elemNode, Read)}},
		{"component out of range", f.elements, []Arg{IndirectOne(f.coordinates, f.elemNode, 3, Read)}},
		{"negative component", f.elements, []Arg{IndirectOne(f.coordinates, f.elemNode, -2, Read)}},
		{"dim mismatch", f.elements, []Arg{Dat(f.com, All, 0, 3, mesh.Float64, Inc)}},
		{"type mismatch", f.elements, []Arg{Dat(f.com, All, 0, 2, mesh.Float32, Inc)}},
		{"unknown dat", f.elements, []Arg{Direct(mesh.DatID(77), Read)}},
		{"invalid mode", f.elements, []Arg{{Dat: f.com, Index: All}}},
		{"mixed modes on one dat", f.elements, []Arg{
			IndirectOne(f.nodeRes, f.elemNode, 0, Inc),
			IndirectOne(f.nodeRes, f.elemNode, 1, Read),
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(f.c, tc.target, tc.args)
			require.ErrorIs(t, err, ErrIncompatibleAccess)
		})
	}
}

func TestSign(t *testing.T) {
	f := newFixture(t)
	read := []Arg{IndirectAll(f.coordinates, f.elemNode, Read), Direct(f.com, Inc)}
	same := []Arg{IndirectAll(f.coordinates, f.elemNode, Read), Direct(f.com, Inc)}
	inc := []Arg{IndirectAll(f.coordinates, f.elemNode, Inc), Direct(f.com, Inc)}
	swapped := []Arg{Direct(f.com, Inc), IndirectAll(f.coordinates, f.elemNode, Read)}

	require.Equal(t, Sign(f.elements, read), Sign(f.elements, same))
	require.NotEqual(t, Sign(f.elements, read), Sign(f.elements, inc))
	require.NotEqual(t, Sign(f.elements, read), Sign(f.elements, swapped))
	require.NotEqual(t, Sign(f.elements, read), Sign(f.nodes, read))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"OP_READ": Read, "write": Write, "rw": ReadWrite, "OP_INC": Inc, "increment": Inc} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseMode("OP_MAX")
	require.Error(t, err)
}
