package meshio

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Grid returns a program over the unit square split into nx by ny quads,
// each cut into two triangles. Nodes are numbered row by row; the table is
// 0-based. The schedule computes cell centroids and scatters a third of
// unit weight from every cell to its nodes.
func Grid(nx, ny int) (*Program, error) {
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("grid %dx%d: both sides must be >= 1", nx, ny)
	}
	nodes := (nx + 1) * (ny + 1)
	cells := 2 * nx * ny

	node := func(i, j int) int { return j*(nx+1) + i }
	table := make([]int, 0, 3*cells)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			n00, n10 := node(i, j), node(i+1, j)
			n01, n11 := node(i, j+1), node(i+1, j+1)
			table = append(table, n00, n10, n01, n01, n10, n11)
		}
	}
	x := make([]float64, 0, 2*nodes)
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			x = append(x, float64(i)/float64(nx), float64(j)/float64(ny))
		}
	}

	return &Program{
		Sets: []SetEntry{
			{Name: "nodes", Size: nodes},
			{Name: "cells", Size: cells},
		},
		Maps: []MapEntry{
			{Name: "pcell", From: "cells", To: "nodes", Arity: 3, Table: table},
		},
		Dats: []DatEntry{
			{Name: "x", Set: "nodes", Dim: 2, Type: "double", Values: x},
			{Name: "com", Set: "cells", Dim: 2, Type: "double"},
			{Name: "area", Set: "nodes", Dim: 1, Type: "double"},
		},
		Loops: []LoopEntry{
			{
				Name: "centroid", Kernel: "centroid", Set: "cells",
				Args: []ArgEntry{
					{Dat: "x", Map: "pcell", Dim: 2, Type: "double", Mode: "read"},
					{Dat: "com", Dim: 2, Type: "double", Mode: "inc"},
				},
			},
			{
				Name: "scatter_area", Kernel: "spread", Set: "cells",
				Args: []ArgEntry{
					{Dat: "area", Map: "pcell", Mode: "inc"},
				},
			},
		},
	}, nil
}

// Marshal encodes p as YAML.
func (p *Program) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
