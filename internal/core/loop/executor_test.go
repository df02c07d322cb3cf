package loop

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/parloop/parloop/internal/core/access"
	"github.com/parloop/parloop/internal/core/mesh"
	"github.com/parloop/parloop/internal/core/plan"
)

func centroid(args []Arg) error {
	x, c := args[0].F64(), args[1].F64()
	c[0] += (x[0] + x[2] + x[4]) / 3
	c[1] += (x[1] + x[3] + x[5]) / 3
	return nil
}

func mustPlan(t *testing.T, c *mesh.Context, set mesh.SetID, args []access.Arg, opts plan.Options) *plan.Plan {
	t.Helper()
	require.NoError(t, access.Validate(c, set, args))
	p, err := plan.Build(context.Background(), c, set, args, opts)
	require.NoError(t, err)
	return p
}

func TestRun_CentroidExample(t *testing.T) {
	c := mesh.NewContext()
	nodes, _ := c.DeclSet(4, "nodes")
	elements, _ := c.DeclSet(2, "elements")
	m, err := c.DeclMap(elements, nodes, 3, []int{1, 2, 3, 3, 2, 4}, "element-node", mesh.WithIndexBase(1))
	require.NoError(t, err)
	x, _ := mesh.DeclDatOf(c, nodes, 2, []float64{0, 0, 0.9, 0.1, 0.1, 0.9, 1, 1}, "coordinates")
	com, _ := mesh.DeclDatOf[float64](c, elements, 2, nil, "com")

	args := []access.Arg{
		access.Dat(x, access.All, m, 2, mesh.Float64, access.Read),
		access.Dat(com, access.All, 0, 2, mesh.Float64, access.Inc),
	}
	p := mustPlan(t, c, elements, args, plan.Options{})
	require.Equal(t, 1, p.MaxColors())

	rep, err := NewExecutor(c, Options{Workers: 2}, nil).Run(context.Background(), centroid, "kernel", p, args)
	require.NoError(t, err)
	require.Equal(t, 2, rep.Executed)
	require.Empty(t, rep.Faults)

	d, _ := c.Dat(com)
	got := mesh.Values[float64](d)
	want := []float64{1.0 / 3, 1.0 / 3, 2.0 / 3, 2.0 / 3}
	require.InDeltaSlice(t, want, got, 1e-12)

	xd, _ := c.Dat(x)
	require.Equal(t, []float64{0, 0, 0.9, 0.1, 0.1, 0.9, 1, 1}, mesh.Values[float64](xd))
}

type scatterMesh struct {
	c        *mesh.Context
	nodes    mesh.SetID
	elements mesh.SetID
	m        mesh.MapID
	w, res   mesh.DatID
	deg      mesh.DatID
	want     []float64
	wantDeg  []int32
}

// newScatterMesh builds a random element→node mesh where each element
// increments its nodes by its own weight.
func newScatterMesh(t *testing.T, seed int64) scatterMesh {
	t.Helper()
	const nodes, elements, arity = 60, 400, 3
	rng := rand.New(rand.NewSource(seed))
	c := mesh.NewContext()
	n, _ := c.DeclSet(nodes, "nodes")
	e, _ := c.DeclSet(elements, "elements")
	table := make([]int, elements*arity)
	weights := make([]float64, elements)
	want := make([]float64, nodes)
	wantDeg := make([]int32, nodes)
	for i := range weights {
		weights[i] = rng.Float64()
		for j := 0; j < arity; j++ {
			v := rng.Intn(nodes)
			table[i*arity+j] = v
			want[v] += weights[i]
			wantDeg[v]++
		}
	}
	m, err := c.DeclMap(e, n, arity, table, "element-node")
	require.NoError(t, err)
	w, _ := mesh.DeclDatOf(c, e, 1, weights, "w")
	res, _ := mesh.DeclDatOf[float64](c, n, 1, nil, "res")
	deg, _ := mesh.DeclDatOf[int32](c, n, 1, nil, "deg")
	return scatterMesh{c: c, nodes: n, elements: e, m: m, w: w, res: res, deg: deg, want: want, wantDeg: wantDeg}
}

func scatterKernel(args []Arg) error {
	w, res, deg := args[0].F64(), args[1].F64(), args[2].I32()
	for j := range res {
		res[j] += w[0]
		deg[j]++
	}
	return nil
}

func TestRun_IncrementsAreOrderIndependent(t *testing.T) {
	for _, tc := range []struct {
		name      string
		blockSize int
		workers   int
		shuffle   bool
	}{
		{"sequential", 0, 1, false},
		{"one block shuffled", 400, 4, true},
		{"many blocks", 16, 8, false},
		{"many blocks shuffled", 16, 8, true},
		{"tiny blocks", 1, 3, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sm := newScatterMesh(t, 42)
			args := []access.Arg{
				access.Direct(sm.w, access.Read),
				access.IndirectAll(sm.res, sm.m, access.Inc),
				access.IndirectAll(sm.deg, sm.m, access.Inc),
			}
			p := mustPlan(t, sm.c, sm.elements, args, plan.Options{BlockSize: tc.blockSize, Workers: tc.workers})

			x := NewExecutor(sm.c, Options{Workers: tc.workers}, nil)
			if tc.shuffle {
				var mu sync.Mutex
				rng := rand.New(rand.NewSource(7))
				x.order = func(color []int) []int {
					mu.Lock()
					defer mu.Unlock()
					rng.Shuffle(len(color), func(i, j int) { color[i], color[j] = color[j], color[i] })
					return color
				}
			}
			rep, err := x.Run(context.Background(), scatterKernel, "scatter", p, args)
			require.NoError(t, err)
			require.Equal(t, 400, rep.Executed)

			res, _ := sm.c.Dat(sm.res)
			require.InDeltaSlice(t, sm.want, mesh.Values[float64](res), 1e-9)
			deg, _ := sm.c.Dat(sm.deg)
			require.Equal(t, sm.wantDeg, mesh.Values[int32](deg))
		})
	}
}

// chain is 6 edges over 7 nodes; with a single block its coloring is
// [0 2 4] [1 3 5].
func chain(t *testing.T) (*mesh.Context, mesh.SetID, mesh.MapID, mesh.DatID) {
	t.Helper()
	c := mesh.NewContext()
	nodes, _ := c.DeclSet(7, "nodes")
	edges, _ := c.DeclSet(6, "edges")
	m, err := c.DeclMap(edges, nodes, 2, []int{0, 1, 1, 2, 2, 3, 3, 4, 4, 5, 5, 6}, "edge-node")
	require.NoError(t, err)
	v, _ := mesh.DeclDatOf[float64](c, nodes, 1, nil, "v")
	return c, edges, m, v
}

func TestRun_WritesAcrossBlocksLastBlockWins(t *testing.T) {
	c, edges, m, v := chain(t)
	args := []access.Arg{access.IndirectAll(v, m, access.Write), access.Direct(mustEdgeIDs(t, c, edges), access.Read)}
	p := mustPlan(t, c, edges, args, plan.Options{BlockSize: 2})
	require.Len(t, p.Blocks, 3)

	_, err := NewExecutor(c, Options{Workers: 3}, nil).Run(context.Background(), func(args []Arg) error {
		out, id := args[0].F64(), args[1].F64()
		out[0], out[1] = id[0], id[0]
		return nil
	}, "stamp", p, args)
	require.NoError(t, err)

	d, _ := c.Dat(v)
	require.Equal(t, []float64{0, 1, 2, 3, 4, 5, 5}, mesh.Values[float64](d))
}

func mustEdgeIDs(t *testing.T, c *mesh.Context, edges mesh.SetID) mesh.DatID {
	t.Helper()
	id, err := mesh.DeclDatOf(c, edges, 1, []float64{0, 1, 2, 3, 4, 5}, "edge-id")
	require.NoError(t, err)
	return id
}

func TestRun_ReadWriteSeesEarlierColors(t *testing.T) {
	c, edges, m, v := chain(t)
	args := []access.Arg{access.IndirectAll(v, m, access.ReadWrite)}
	p := mustPlan(t, c, edges, args, plan.Options{BlockSize: 6})

	_, err := NewExecutor(c, Options{}, nil).Run(context.Background(), func(args []Arg) error {
		nv := args[0].F64()
		nv[0]++
		nv[1]++
		return nil
	}, "count", p, args)
	require.NoError(t, err)

	d, _ := c.Dat(v)
	require.Equal(t, []float64{1, 2, 2, 2, 2, 2, 1}, mesh.Values[float64](d))
}

func TestRun_IsolateSkipsFailedEntity(t *testing.T) {
	sm := newScatterMesh(t, 3)
	args := []access.Arg{
		access.Direct(sm.w, access.Read),
		access.IndirectAll(sm.res, sm.m, access.Inc),
		access.IndirectAll(sm.deg, sm.m, access.Inc),
	}
	p := mustPlan(t, sm.c, sm.elements, args, plan.Options{BlockSize: 50})
	boom := errors.New("boom")
	w10, w200 := sm.weight(t, 10), sm.weight(t, 200)

	rep, err := NewExecutor(sm.c, Options{Workers: 4, Policy: Isolate}, nil).Run(context.Background(), func(args []Arg) error {
		if w := args[0].F64()[0]; w == w10 || w == w200 {
			// Scribble on the outputs before failing: none of it may land.
			args[1].F64()[0] = 1e9
			return boom
		}
		return scatterKernel(args)
	}, "scatter", p, args)
	require.NoError(t, err)
	require.Equal(t, 398, rep.Executed)
	require.Len(t, rep.Faults, 2)
	require.Equal(t, 10, rep.Faults[0].Entity)
	require.Equal(t, 200, rep.Faults[1].Entity)
	require.ErrorIs(t, rep.Faults[0], boom)

	want := append([]float64(nil), sm.want...)
	mp, _ := sm.c.Map(sm.m)
	for _, e := range []int{10, 200} {
		for _, node := range mp.Row(e) {
			want[node] -= sm.weight(t, e)
		}
	}
	res, _ := sm.c.Dat(sm.res)
	require.InDeltaSlice(t, want, mesh.Values[float64](res), 1e-9)
}

func (sm scatterMesh) weight(t *testing.T, e int) float64 {
	d, ok := sm.c.Dat(sm.w)
	require.True(t, ok)
	return mesh.Values[float64](d)[e]
}

func TestRun_AbortStopsAtColorBarrier(t *testing.T) {
	c, edges, m, v := chain(t)
	args := []access.Arg{access.IndirectAll(v, m, access.Inc), access.Direct(mustEdgeIDs(t, c, edges), access.Read)}
	p := mustPlan(t, c, edges, args, plan.Options{BlockSize: 6})
	require.Equal(t, [][]int{{0, 2, 4}, {1, 3, 5}}, p.Blocks[0].Colors)

	rep, err := NewExecutor(c, Options{Policy: Abort}, nil).Run(context.Background(), func(args []Arg) error {
		if args[1].F64()[0] == 2 {
			panic("bad element")
		}
		out := args[0].F64()
		out[0], out[1] = 1, 1
		return nil
	}, "abort", p, args)

	var fault *KernelFault
	require.ErrorAs(t, err, &fault)
	require.Equal(t, 2, fault.Entity)
	require.Contains(t, fault.Error(), "bad element")
	require.Equal(t, 2, rep.Executed)

	d, _ := c.Dat(v)
	require.Equal(t, []float64{1, 1, 0, 0, 1, 1, 0}, mesh.Values[float64](d))
}

func TestRun_CanceledBeforeStart(t *testing.T) {
	sm := newScatterMesh(t, 5)
	args := []access.Arg{
		access.Direct(sm.w, access.Read),
		access.IndirectAll(sm.res, sm.m, access.Inc),
		access.IndirectAll(sm.deg, sm.m, access.Inc),
	}
	p := mustPlan(t, sm.c, sm.elements, args, plan.Options{BlockSize: 64})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := NewExecutor(sm.c, Options{}, nil).Run(ctx, scatterKernel, "scatter", p, args)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, rep.Executed)
	res, _ := sm.c.Dat(sm.res)
	for _, v := range mesh.Values[float64](res) {
		require.Zero(t, v)
	}
}

func TestRun_RejectsRenumberedPlan(t *testing.T) {
	c, edges, m, v := chain(t)
	args := []access.Arg{access.IndirectAll(v, m, access.Inc)}
	p := mustPlan(t, c, edges, args, plan.Options{})
	mp, _ := c.Map(m)
	mp.Arity = 1

	_, err := NewExecutor(c, Options{}, nil).Run(context.Background(), func([]Arg) error { return nil }, "noop", p, args)
	require.ErrorIs(t, err, plan.ErrPlanBuild)
}

func TestRun_RejectsArgsOfAnotherPlan(t *testing.T) {
	c, edges, m, v := chain(t)
	ids := mustEdgeIDs(t, c, edges)
	direct := []access.Arg{access.Direct(ids, access.Read)}
	p := mustPlan(t, c, edges, direct, plan.Options{})
	require.Equal(t, 1, p.MaxColors())

	called := false
	scatter := []access.Arg{access.Direct(ids, access.Read), access.IndirectAll(v, m, access.Inc)}
	_, err := NewExecutor(c, Options{}, nil).Run(context.Background(), func([]Arg) error {
		called = true
		return nil
	}, "scatter", p, scatter)
	require.ErrorIs(t, err, access.ErrIncompatibleAccess)
	require.False(t, called)
	vd, _ := c.Dat(v)
	require.Equal(t, make([]float64, 7), mesh.Values[float64](vd))
}

func TestArgAccessors(t *testing.T) {
	a := NewArg([]float32{1, 2, 3, 4}, 2, access.Read)
	require.Equal(t, 2, a.Count)
	require.Equal(t, 4, a.Len())
	require.Equal(t, []float32{1, 2, 3, 4}, a.F32())
	require.Nil(t, a.F64())
	require.Nil(t, a.I32())
}

func TestParseFaultPolicy(t *testing.T) {
	p, err := ParseFaultPolicy("Isolate")
	require.NoError(t, err)
	require.Equal(t, Isolate, p)
	p, err = ParseFaultPolicy("")
	require.NoError(t, err)
	require.Equal(t, Abort, p)
	_, err = ParseFaultPolicy("retry")
	require.Error(t, err)
}
