package export

import (
	"bufio"
	"fmt"
	"io"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/marcomangano/pygeo"
)

// TecplotOptions select which zones WriteTecplot emits. The zero
// value writes the interpolated surfaces only.
type TecplotOptions struct {
	// Size is the sampling grid per patch for the surface zones.
	// Defaults to 25.
	Size int
	// Coef adds one zone per patch with the control grid.
	Coef bool
	// Orig adds one zone per patch with the original data.
	Orig bool
	// Edges adds a polyline zone per topology edge, named by its
	// continuity.
	Edges bool
	// Axes adds a polyline zone per reference axis.
	Axes bool
	// Links adds a line-segment zone per axis connecting each
	// attached control point to its axis anchor.
	Links bool
}

// WriteTecplot writes the model as ASCII Tecplot zones for
// visualization.
func WriteTecplot(w io.Writer, m *pygeo.Model, opts TecplotOptions) error {
	size := opts.Size
	if size <= 0 {
		size = 25
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, `VARIABLES = "X", "Y", "Z"`)

	for p, surf := range m.Surfs {
		fmt.Fprintf(bw, "Zone T=\"surf%d\" I=%d J=%d\n", p, size, size)
		for j := 0; j < size; j++ {
			v := float64(j) / float64(size-1)
			for i := 0; i < size; i++ {
				u := float64(i) / float64(size-1)
				writePoint(bw, surf.Point(u, v))
			}
		}
	}
	if opts.Coef {
		for p, surf := range m.Surfs {
			nctlu, nctlv := surf.NumCtl()
			fmt.Fprintf(bw, "Zone T=\"coef%d\" I=%d J=%d\n", p, nctlu, nctlv)
			for j := 0; j < nctlv; j++ {
				for i := 0; i < nctlu; i++ {
					writePoint(bw, surf.Coef[i][j])
				}
			}
		}
	}
	if opts.Orig {
		for p, surf := range m.Surfs {
			nu, nv := surf.NumData()
			fmt.Fprintf(bw, "Zone T=\"orig%d\" I=%d J=%d\n", p, nu, nv)
			for j := 0; j < nv; j++ {
				for i := 0; i < nu; i++ {
					writePoint(bw, surf.Data[i][j])
				}
			}
		}
	}
	if opts.Edges {
		for ie, e := range m.Topo.Edges {
			onEdge := m.Topo.SurfacesOnEdge(ie)
			if len(onEdge) == 0 {
				continue
			}
			s, slot := onEdge[0][0], onEdge[0][1]
			name := "edge"
			if e.Cont == pygeo.C1 {
				name = "continuity_edge"
			} else if e.Degen {
				name = "degenerate_edge"
			}
			fmt.Fprintf(bw, "Zone T=\"%s%d\" I=%d\n", name, ie, size)
			for k := 0; k < size; k++ {
				t := float64(k) / float64(size-1)
				var u, v float64
				switch slot {
				case 0:
					u, v = t, 0
				case 1:
					u, v = t, 1
				case 2:
					u, v = 0, t
				default:
					u, v = 1, t
				}
				writePoint(bw, m.Surfs[s].Point(u, v))
			}
		}
	}
	if opts.Axes {
		for r, ax := range m.Axes() {
			params := ax.Params()
			fmt.Fprintf(bw, "Zone T=\"ref_axis%d\" I=%d\n", r, len(params))
			for _, s := range params {
				writePoint(bw, ax.PositionAt(s).Real())
			}
		}
	}
	if opts.Links {
		for _, ax := range m.Axes() {
			n := ax.NumLinks()
			if n == 0 {
				continue
			}
			fmt.Fprintf(bw, "Zone N=%d E=%d\n", 2*n, n)
			fmt.Fprintln(bw, "DATAPACKING=BLOCK, ZONETYPE=FELINESEG")
			coords := make([]r3.Vec, 0, 2*n)
			for i := 0; i < n; i++ {
				s, gid := ax.Link(i)
				coords = append(coords, ax.PositionAt(s).Real(), m.Coef[gid].Real())
			}
			for dim := 0; dim < 3; dim++ {
				for _, c := range coords {
					switch dim {
					case 0:
						fmt.Fprintf(bw, "%f\n", c.X)
					case 1:
						fmt.Fprintf(bw, "%f\n", c.Y)
					default:
						fmt.Fprintf(bw, "%f\n", c.Z)
					}
				}
			}
			for i := 0; i < n; i++ {
				fmt.Fprintf(bw, "%d %d\n", 2*i+1, 2*i+2)
			}
		}
	}
	return bw.Flush()
}

func writePoint(w io.Writer, p r3.Vec) {
	fmt.Fprintf(w, "%f %f %f\n", p.X, p.Y, p.Z)
}
