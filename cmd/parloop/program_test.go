package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/parloop/parloop/internal/config"
	"github.com/parloop/parloop/internal/core/event"
	"github.com/parloop/parloop/internal/core/mesh"
	coresys "github.com/parloop/parloop/internal/core/system"
	"github.com/parloop/parloop/internal/engine"
	"github.com/parloop/parloop/internal/meshio"
	"github.com/parloop/parloop/internal/scripting"
	"github.com/parloop/parloop/internal/system"
)

func TestSampleProgram(t *testing.T) {
	root := filepath.Join("..", "..")
	cfg, err := config.Load(filepath.Join(root, "config", "parloop.toml"))
	require.NoError(t, err)

	for _, useLua := range []bool{true, false} {
		bus := event.NewBus()
		eng, err := engine.Init(cfg.Engine, zap.NewNop(), bus)
		require.NoError(t, err)

		prog, err := meshio.Load(filepath.Join(root, cfg.Program.Mesh))
		require.NoError(t, err)
		loops, err := prog.Declare(eng.Mesh())
		require.NoError(t, err)

		kernels := system.Kernels{builtins}
		if useLua {
			lua, err := scripting.NewEngine(filepath.Join(root, cfg.Program.Scripts), 2, zap.NewNop())
			require.NoError(t, err)
			defer lua.Close()
			kernels = system.Kernels{lua}
		}
		ls, err := system.NewLoopSystem(eng, loops, kernels, zap.NewNop())
		require.NoError(t, err)

		r := coresys.NewRunner()
		r.Register(ls)
		require.NoError(t, r.Run(context.Background(), 1))

		com, _ := eng.Mesh().DatByName("com")
		got := mesh.Values[float64](com)
		want := []float64{1.0 / 3, 1.0 / 3, 2.0 / 3, 2.0 / 3}
		for i := range want {
			require.InDelta(t, want[i], got[i], 1e-12, "lua=%v com[%d]", useLua, i)
		}

		area, _ := eng.Mesh().DatByName("area")
		want = []float64{1.0 / 3, 2.0 / 3, 2.0 / 3, 1.0 / 3}
		got = mesh.Values[float64](area)
		for i := range want {
			require.InDelta(t, want[i], got[i], 1e-12, "lua=%v area[%d]", useLua, i)
		}
		eng.Exit()
	}
}
