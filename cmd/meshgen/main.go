// meshgen writes a triangulated unit-square mesh program for parloop.
//
// Usage:
//
//	go run ./cmd/meshgen [nx ny [output.yaml]]
//
// Defaults to a 64x64 grid written to data/mesh/grid.yaml.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/parloop/parloop/internal/meshio"
)

func main() {
	nx, ny := 64, 64
	outputPath := filepath.Join("data", "mesh", "grid.yaml")

	if len(os.Args) >= 3 {
		var err error
		if nx, err = strconv.Atoi(os.Args[1]); err != nil {
			fmt.Fprintf(os.Stderr, "bad nx %q: %v\n", os.Args[1], err)
			os.Exit(1)
		}
		if ny, err = strconv.Atoi(os.Args[2]); err != nil {
			fmt.Fprintf(os.Stderr, "bad ny %q: %v\n", os.Args[2], err)
			os.Exit(1)
		}
	}
	if len(os.Args) >= 4 {
		outputPath = os.Args[3]
	}

	prog, err := meshio.Grid(nx, ny)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	raw, err := prog.Marshal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshalling YAML: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output directory: %v\n", err)
		os.Exit(1)
	}
	header := fmt.Sprintf("# %dx%d triangulated unit square - generated by meshgen\n\n", nx, ny)
	if err := os.WriteFile(outputPath, append([]byte(header), raw...), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", outputPath, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d nodes, %d cells to %s\n", prog.Sets[0].Size, prog.Sets[1].Size, outputPath)
}
