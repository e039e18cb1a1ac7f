// Package export reads and writes the file formats the geometry
// engine exchanges with meshing and visualization tools: ASCII
// multiblock Plot3D, Tecplot zones and IGES type-128 spline entities.
package export

import (
	"bufio"
	"fmt"
	"io"

	"gonum.org/v1/gonum/spatial/r3"
)

// ReadPlot3D parses an ASCII multiblock Plot3D surface file: a block
// count, ni nj nk dimensions per block, then the coordinate values of
// each block with i running fastest and the three dimensions stored
// one after another. Every block must have nk == 1.
func ReadPlot3D(r io.Reader) ([][][]r3.Vec, error) {
	br := bufio.NewReader(r)
	var nBlock int
	if _, err := fmt.Fscan(br, &nBlock); err != nil {
		return nil, fmt.Errorf("export: plot3d block count: %w", err)
	}
	if nBlock <= 0 {
		return nil, fmt.Errorf("export: plot3d block count %d", nBlock)
	}
	dims := make([][3]int, nBlock)
	for b := range dims {
		if _, err := fmt.Fscan(br, &dims[b][0], &dims[b][1], &dims[b][2]); err != nil {
			return nil, fmt.Errorf("export: plot3d dimensions of block %d: %w", b, err)
		}
		if dims[b][2] != 1 {
			return nil, fmt.Errorf("export: plot3d block %d has nk=%d, only surface blocks (nk=1) are supported", b, dims[b][2])
		}
	}
	grids := make([][][]r3.Vec, nBlock)
	for b := range grids {
		ni, nj := dims[b][0], dims[b][1]
		grids[b] = make([][]r3.Vec, ni)
		for i := range grids[b] {
			grids[b][i] = make([]r3.Vec, nj)
		}
		for dim := 0; dim < 3; dim++ {
			for j := 0; j < nj; j++ {
				for i := 0; i < ni; i++ {
					var v float64
					if _, err := fmt.Fscan(br, &v); err != nil {
						return nil, fmt.Errorf("export: plot3d block %d data: %w", b, err)
					}
					switch dim {
					case 0:
						grids[b][i][j].X = v
					case 1:
						grids[b][i][j].Y = v
					default:
						grids[b][i][j].Z = v
					}
				}
			}
		}
	}
	return grids, nil
}

// WritePlot3D writes data grids in the format ReadPlot3D parses.
func WritePlot3D(w io.Writer, grids [][][]r3.Vec) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d\n", len(grids))
	for _, g := range grids {
		fmt.Fprintf(bw, "%d %d %d\n", len(g), len(g[0]), 1)
	}
	for _, g := range grids {
		ni, nj := len(g), len(g[0])
		n := 0
		for dim := 0; dim < 3; dim++ {
			for j := 0; j < nj; j++ {
				for i := 0; i < ni; i++ {
					var v float64
					switch dim {
					case 0:
						v = g[i][j].X
					case 1:
						v = g[i][j].Y
					default:
						v = g[i][j].Z
					}
					fmt.Fprintf(bw, "%20.12e", v)
					n++
					if n%4 == 0 {
						fmt.Fprintln(bw)
					} else {
						fmt.Fprint(bw, " ")
					}
				}
			}
		}
		if n%4 != 0 {
			fmt.Fprintln(bw)
		}
	}
	return bw.Flush()
}
