package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBus_DeliversNextStep(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(e LoopCompleted) { got = append(got, e.Loop) })

	Emit(b, LoopCompleted{Loop: "a"})
	require.Equal(t, 0, b.DispatchAll())
	require.Empty(t, got)

	b.SwapBuffers()
	Emit(b, LoopCompleted{Loop: "b"})
	require.Equal(t, 1, b.DispatchAll())
	require.Equal(t, []string{"a"}, got)

	b.SwapBuffers()
	require.Equal(t, 1, b.DispatchAll())
	require.Equal(t, []string{"a", "b"}, got)

	b.SwapBuffers()
	require.Equal(t, 0, b.DispatchAll())
}

func TestBus_FlushAndNil(t *testing.T) {
	b := NewBus()
	var plans int
	Subscribe(b, func(PlanBuilt) { plans++ })
	Emit(b, PlanBuilt{Loop: "x"})
	Emit(b, PlanBuilt{Loop: "y"})
	b.Flush()
	require.Equal(t, 2, plans)

	var nilBus *Bus
	Emit(nilBus, PlanBuilt{})
}
