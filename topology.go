package pygeo

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r3"
)

// Continuity is the inter-patch continuity requirement carried by an
// edge.
type Continuity int

const (
	// C0 edges only share positions.
	C0 Continuity = iota
	// C1 edges additionally constrain the fitter to keep the control
	// points on either side collinear with the edge.
	C1
)

// Edge is a deduplicated patch boundary curve.
type Edge struct {
	N1, N2    int        // endpoint node ids
	Cont      Continuity // continuity across the edge
	Degen     bool       // collapsed edge (both ends on one node)
	Intersect bool       // marked as a surface-intersection edge
	DG        int        // design group id
	NCtl      int        // control point count along the edge
}

// Topology is the stitched connectivity of a patch collection: the
// deduplicated nodes and edges plus, per patch, which node sits at
// each of its 4 corners and which edge (and traversal direction) runs
// along each of its 4 sides.
//
// Corner and edge slots follow a fixed convention on the control or
// data grid (N x M): corners 0..3 are (0,0), (N-1,0), (0,M-1),
// (N-1,M-1); edges 0 and 1 run along u at j=0 and j=M-1, edges 2 and
// 3 run along v at i=0 and i=N-1.
type Topology struct {
	Nodes    []r3.Vec // deduplicated corner positions
	NodeLink [][4]int // node id per patch corner slot
	Edges    []*Edge
	EdgeLink [][4]int // edge id per patch edge slot
	EdgeDir  [][4]int // +1 forward, -1 reversed traversal
}

// NNode returns the number of distinct node ids referenced by the
// topology.
func (t *Topology) NNode() int {
	max := -1
	for s := range t.NodeLink {
		for _, n := range t.NodeLink[s] {
			if n > max {
				max = n
			}
		}
	}
	return max + 1
}

// NPatch returns the number of patches the topology covers.
func (t *Topology) NPatch() int { return len(t.NodeLink) }

// nodesFromEdge returns the two corner slots terminating an edge slot.
func nodesFromEdge(edge int) (n1, n2 int) {
	switch edge {
	case 0:
		return 0, 1
	case 1:
		return 2, 3
	case 2:
		return 0, 2
	default:
		return 1, 3
	}
}

// flipEdge returns the edge slot on the same patch running parallel to
// the given one. Parallel edges share a control point count, which is
// what design groups propagate.
func flipEdge(edge int) int {
	switch edge {
	case 0:
		return 1
	case 1:
		return 0
	case 2:
		return 3
	default:
		return 2
	}
}

// Grid location classification returned by indexPosition.
const (
	gridInterior = iota
	gridEdge
	gridCorner
)

// indexPosition classifies grid cell (i,j) on an N x M grid. For edge
// cells it also returns the edge slot and the running index along
// that edge; for corner cells the corner slot.
func indexPosition(i, j, n, m int) (kind, edge, node, index int) {
	switch {
	case i > 0 && i < n-1 && j > 0 && j < m-1:
		return gridInterior, -1, -1, -1
	case i > 0 && i < n-1 && j == 0:
		return gridEdge, 0, -1, i
	case i > 0 && i < n-1 && j == m-1:
		return gridEdge, 1, -1, i
	case i == 0 && j > 0 && j < m-1:
		return gridEdge, 2, -1, j
	case i == n-1 && j > 0 && j < m-1:
		return gridEdge, 3, -1, j
	case i == 0 && j == 0:
		return gridCorner, -1, 0, -1
	case i == n-1 && j == 0:
		return gridCorner, -1, 1, -1
	case i == 0 && j == m-1:
		return gridCorner, -1, 2, -1
	default:
		return gridCorner, -1, 3, -1
	}
}

// edgesFromCorner returns the two edge slots incident to a corner slot
// and the index of the corner along each of them on an N x M grid.
func edgesFromCorner(corner, n, m int) (e1, e2, idx1, idx2 int) {
	switch corner {
	case 0:
		return 0, 2, 0, 0
	case 1:
		return 0, 3, n - 1, 0
	case 2:
		return 1, 2, 0, m - 1
	default:
		return 1, 3, n - 1, m - 1
	}
}

// stitch discovers the shared nodes and edges of the patch collection.
// Corners within nodeTol collapse onto one node; boundary curves with
// matching endpoint nodes and midpoints within edgeTol collapse onto
// one edge, recording a -1 direction when the endpoints match
// reversed. Patches with no neighbor simply keep private nodes and
// edges.
func stitch(surfs []patchGeom, nodeTol, edgeTol float64) *Topology {
	t := &Topology{
		NodeLink: make([][4]int, len(surfs)),
		EdgeLink: make([][4]int, len(surfs)),
		EdgeDir:  make([][4]int, len(surfs)),
	}
	for s, geom := range surfs {
		for corner := 0; corner < 4; corner++ {
			p := geom.corner(corner)
			found := -1
			for i, q := range t.Nodes {
				if r3.Norm(r3.Sub(p, q)) < nodeTol {
					found = i
					break
				}
			}
			if found < 0 {
				found = len(t.Nodes)
				t.Nodes = append(t.Nodes, p)
			}
			t.NodeLink[s][corner] = found
		}
	}

	type protoEdge struct {
		n1, n2 int
		mid    r3.Vec
	}
	var protos []protoEdge
	for s, geom := range surfs {
		for slot := 0; slot < 4; slot++ {
			c1, c2 := nodesFromEdge(slot)
			n1 := t.NodeLink[s][c1]
			n2 := t.NodeLink[s][c2]
			_, mid, _ := geom.edge(slot)
			found := -1
			dir := 1
			for i, pe := range protos {
				if n1 == n2 {
					// A collapsed edge never merges with another.
					break
				}
				if r3.Norm(r3.Sub(mid, pe.mid)) >= edgeTol {
					continue
				}
				if pe.n1 == n1 && pe.n2 == n2 {
					found, dir = i, 1
					break
				}
				if pe.n1 == n2 && pe.n2 == n1 {
					found, dir = i, -1
					break
				}
			}
			if found < 0 {
				found = len(protos)
				protos = append(protos, protoEdge{n1: n1, n2: n2, mid: mid})
			}
			t.EdgeLink[s][slot] = found
			t.EdgeDir[s][slot] = dir
		}
	}

	t.Edges = make([]*Edge, len(protos))
	for i, pe := range protos {
		degen := pe.n1 == pe.n2 && r3.Norm(r3.Sub(pe.mid, t.Nodes[pe.n1])) < nodeTol
		t.Edges[i] = &Edge{N1: pe.n1, N2: pe.n2, Degen: degen, DG: -1}
	}
	t.assignDesignGroups(surfs)
	return t
}

// patchGeom is the slice of patch geometry stitching needs.
type patchGeom struct {
	corner func(int) r3.Vec
	edge   func(int) (beg, mid, end r3.Vec)
	nCtlU  int
	nCtlV  int
}

// assignDesignGroups floods design-group ids across parallel-edge
// pairs with an explicit worklist. Edges whose endpoints coincide do
// not propagate further.
func (t *Topology) assignDesignGroups(surfs []patchGeom) {
	dg := -1
	for seed := range t.Edges {
		if t.Edges[seed].DG != -1 {
			continue
		}
		dg++
		t.Edges[seed].DG = dg
		work := []int{seed}
		for len(work) > 0 {
			ie := work[len(work)-1]
			work = work[:len(work)-1]
			for s := range t.EdgeLink {
				for slot := 0; slot < 4; slot++ {
					if t.EdgeLink[s][slot] != ie {
						continue
					}
					if slot < 2 {
						t.Edges[ie].NCtl = surfs[s].nCtlU
					} else {
						t.Edges[ie].NCtl = surfs[s].nCtlV
					}
					opp := t.EdgeLink[s][flipEdge(slot)]
					if t.Edges[opp].DG == -1 {
						t.Edges[opp].DG = dg
						if t.Edges[opp].N1 != t.Edges[opp].N2 {
							work = append(work, opp)
						}
					}
				}
			}
		}
	}
}

// SurfacesOnEdge returns every (patch, slot) pair whose boundary runs
// along edge ie.
func (t *Topology) SurfacesOnEdge(ie int) [][2]int {
	var out [][2]int
	for s := range t.EdgeLink {
		for slot := 0; slot < 4; slot++ {
			if t.EdgeLink[s][slot] == ie {
				out = append(out, [2]int{s, slot})
			}
		}
	}
	return out
}

// Reduced extracts the sub-topology covering only the given patches,
// with node and edge ids renumbered densely in ascending order of
// their original ids. The returned topology shares Edge records with
// the parent.
func (t *Topology) Reduced(patches []int) *Topology {
	sub := &Topology{
		NodeLink: make([][4]int, len(patches)),
		EdgeLink: make([][4]int, len(patches)),
		EdgeDir:  make([][4]int, len(patches)),
	}
	nodeMap := map[int]int{}
	edgeMap := map[int]int{}
	var nodeIDs, edgeIDs []int
	for _, s := range patches {
		for k := 0; k < 4; k++ {
			if _, ok := nodeMap[t.NodeLink[s][k]]; !ok {
				nodeMap[t.NodeLink[s][k]] = 0
				nodeIDs = append(nodeIDs, t.NodeLink[s][k])
			}
			if _, ok := edgeMap[t.EdgeLink[s][k]]; !ok {
				edgeMap[t.EdgeLink[s][k]] = 0
				edgeIDs = append(edgeIDs, t.EdgeLink[s][k])
			}
		}
	}
	sort.Ints(nodeIDs)
	sort.Ints(edgeIDs)
	for i, id := range nodeIDs {
		nodeMap[id] = i
	}
	for i, id := range edgeIDs {
		edgeMap[id] = i
	}
	sub.Nodes = make([]r3.Vec, len(nodeIDs))
	for i, id := range nodeIDs {
		if id < len(t.Nodes) {
			sub.Nodes[i] = t.Nodes[id]
		}
	}
	sub.Edges = make([]*Edge, len(edgeIDs))
	for i, id := range edgeIDs {
		sub.Edges[i] = t.Edges[id]
	}
	for ii, s := range patches {
		for k := 0; k < 4; k++ {
			sub.NodeLink[ii][k] = nodeMap[t.NodeLink[s][k]]
			sub.EdgeLink[ii][k] = edgeMap[t.EdgeLink[s][k]]
			sub.EdgeDir[ii][k] = t.EdgeDir[s][k]
		}
	}
	return sub
}
