package pygeo

import "fmt"

// Location addresses one grid cell on one patch: the patch index
// (into the patch list the numbering was built for) and the (i, j)
// cell on its grid.
type Location struct {
	Patch int
	I     int
	J     int
}

// GlobalNumbering assigns a single global id to every grid cell of
// every listed patch so that cells stitched together by the topology
// share an id. sizes gives the (Nu, Nv) grid dimensions per listed
// patch; patches selects and orders the patch subset (nil means all
// patches in order).
//
// Ids are assigned nodes first, then the interiors of each edge in
// edge order, then patch interiors. A degenerate edge contributes no
// ids of its own; its interior cells reuse its node id. Reversed
// edges number their interior back to front so both sides agree.
//
// It returns the id count, the locations carrying each id, and the
// per-patch id grids. Patches sharing an edge must agree on the grid
// dimension along it or an error is returned.
func (t *Topology) GlobalNumbering(sizes [][2]int, patches []int) (n int, gIndex [][]Location, lIndex [][][]int, err error) {
	if patches == nil {
		patches = make([]int, t.NPatch())
		for i := range patches {
			patches[i] = i
		}
	}
	if len(sizes) != len(patches) {
		return 0, nil, nil, fmt.Errorf("pygeo: %d sizes for %d patches", len(sizes), len(patches))
	}

	edgeN := make([]int, len(t.Edges))
	for ii, s := range patches {
		for slot := 0; slot < 4; slot++ {
			dim := sizes[ii][0]
			if slot >= 2 {
				dim = sizes[ii][1]
			}
			e := t.EdgeLink[s][slot]
			if edgeN[e] == 0 {
				edgeN[e] = dim
			} else if edgeN[e] != dim {
				return 0, nil, nil, fmt.Errorf("pygeo: edge %d size mismatch: %d vs %d (patch %d)", e, edgeN[e], dim, s)
			}
		}
	}

	nNode := t.NNode()
	edgeOffset := make([]int, len(t.Edges))
	counter := nNode
	for i, e := range t.Edges {
		edgeOffset[i] = counter
		if !e.Degen && edgeN[i] > 2 {
			counter += edgeN[i] - 2
		}
	}

	gIndex = make([][]Location, counter)
	lIndex = make([][][]int, len(patches))
	for ii, s := range patches {
		nu, nv := sizes[ii][0], sizes[ii][1]
		lIndex[ii] = make([][]int, nu)
		for i := 0; i < nu; i++ {
			lIndex[ii][i] = make([]int, nv)
		}
		for i := 0; i < nu; i++ {
			for j := 0; j < nv; j++ {
				kind, slot, corner, index := indexPosition(i, j, nu, nv)
				var gid int
				switch kind {
				case gridCorner:
					gid = t.NodeLink[s][corner]
				case gridEdge:
					e := t.EdgeLink[s][slot]
					if t.Edges[e].Degen {
						gid = t.Edges[e].N1
					} else if t.EdgeDir[s][slot] > 0 {
						gid = edgeOffset[e] + index - 1
					} else {
						gid = edgeOffset[e] + edgeN[e] - index - 2
					}
				default:
					gid = len(gIndex)
					gIndex = append(gIndex, nil)
				}
				gIndex[gid] = append(gIndex[gid], Location{Patch: ii, I: i, J: j})
				lIndex[ii][i][j] = gid
			}
		}
	}
	return len(gIndex), gIndex, lIndex, nil
}
