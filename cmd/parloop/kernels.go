package main

import (
	"github.com/parloop/parloop/internal/core/loop"
	"github.com/parloop/parloop/internal/system"
)

// builtins back the mesh program when no Lua script defines a kernel.
var builtins = system.Builtins{
	"centroid": centroid,
	"spread":   spread,
}

// centroid accumulates the mean of a cell's three node coordinates.
// args: x (dim 2, all three nodes), com (dim 2, the cell).
func centroid(args []loop.Arg) error {
	x, com := args[0].F64(), args[1].F64()
	for i := 0; i < 3; i++ {
		com[0] += x[2*i] / 3
		com[1] += x[2*i+1] / 3
	}
	return nil
}

// spread adds a third of unit weight to every node of a cell.
func spread(args []loop.Arg) error {
	w := args[0].F64()
	for i := range w {
		w[i] += 1.0 / 3
	}
	return nil
}
