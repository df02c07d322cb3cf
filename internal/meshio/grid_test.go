package meshio

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/parloop/parloop/internal/core/access"
	"github.com/parloop/parloop/internal/core/mesh"
	"github.com/stretchr/testify/require"
)

func TestGrid_SingleQuad(t *testing.T) {
	p, err := Grid(1, 1)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 2, 1, 3}, p.Maps[0].Table)
	require.Equal(t, []float64{0, 0, 1, 0, 0, 1, 1, 1}, p.Dats[0].Values)
}

func TestGrid_DeclaresAndValidates(t *testing.T) {
	p, err := Grid(3, 2)
	require.NoError(t, err)

	c := mesh.NewContext()
	loops, err := p.Declare(c)
	require.NoError(t, err)

	nodes, _ := c.SetByName("nodes")
	cells, _ := c.SetByName("cells")
	require.Equal(t, 12, nodes.Size)
	require.Equal(t, 12, cells.Size)
	for _, l := range loops {
		require.NoError(t, access.Validate(c, l.Set, l.Args))
	}

	_, err = Grid(0, 4)
	require.Error(t, err)
}

func TestProgram_MarshalParse(t *testing.T) {
	p, err := Grid(2, 1)
	require.NoError(t, err)
	raw, err := p.Marshal()
	require.NoError(t, err)
	require.Contains(t, string(raw), "mode: inc")

	back, err := Parse(raw)
	require.NoError(t, err)
	if diff := cmp.Diff(p, back); diff != "" {
		t.Fatalf("program (-want +got):\n%s", diff)
	}

	one := Index(1)
	p.Loops[1].Args[0].Index = &one
	raw, err = p.Marshal()
	require.NoError(t, err)
	back, err = Parse(raw)
	require.NoError(t, err)
	require.Equal(t, Index(1), *back.Loops[1].Args[0].Index)
}
