package pygeo

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteConnectivity serializes the topology as a small text table so
// a stitching result can be inspected, hand-edited (to flag
// continuity or intersection edges) and read back with
// ReadConnectivity. Node coordinates are not stored; they are only
// needed during stitching.
func (t *Topology) WriteConnectivity(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "nNode: %d nEdge: %d nPatch: %d\n", t.NNode(), len(t.Edges), t.NPatch())
	fmt.Fprintln(bw, "edge |   n1 |   n2 | cont | degen | intersect |   dg | nctl")
	for i, e := range t.Edges {
		fmt.Fprintf(bw, "%4d | %4d | %4d | %4d | %5d | %9d | %4d | %4d\n",
			i, e.N1, e.N2, int(e.Cont), b2i(e.Degen), b2i(e.Intersect), e.DG, e.NCtl)
	}
	fmt.Fprintln(bw, "patch |   n0 |   n1 |   n2 |   n3 |   e0 |   d0 |   e1 |   d1 |   e2 |   d2 |   e3 |   d3")
	for s := range t.EdgeLink {
		fmt.Fprintf(bw, "%5d ", s)
		for k := 0; k < 4; k++ {
			fmt.Fprintf(bw, "| %4d ", t.NodeLink[s][k])
		}
		for k := 0; k < 4; k++ {
			fmt.Fprintf(bw, "| %4d | %4d ", t.EdgeLink[s][k], t.EdgeDir[s][k])
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// ReadConnectivity parses a topology previously written with
// WriteConnectivity. The returned topology has no node coordinates.
func ReadConnectivity(r io.Reader) (*Topology, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return nil, fmt.Errorf("pygeo: empty connectivity stream")
	}
	var nNode, nEdge, nPatch int
	if _, err := fmt.Sscanf(sc.Text(), "nNode: %d nEdge: %d nPatch: %d", &nNode, &nEdge, &nPatch); err != nil {
		return nil, fmt.Errorf("pygeo: bad connectivity header: %w", err)
	}
	t := &Topology{
		Edges:    make([]*Edge, nEdge),
		NodeLink: make([][4]int, nPatch),
		EdgeLink: make([][4]int, nPatch),
		EdgeDir:  make([][4]int, nPatch),
	}
	if !sc.Scan() {
		return nil, fmt.Errorf("pygeo: truncated connectivity stream")
	}
	for i := 0; i < nEdge; i++ {
		f, err := pipeRow(sc, 8)
		if err != nil {
			return nil, fmt.Errorf("pygeo: edge row %d: %w", i, err)
		}
		t.Edges[i] = &Edge{
			N1: f[1], N2: f[2],
			Cont:      Continuity(f[3]),
			Degen:     f[4] != 0,
			Intersect: f[5] != 0,
			DG:        f[6],
			NCtl:      f[7],
		}
	}
	if !sc.Scan() {
		return nil, fmt.Errorf("pygeo: truncated connectivity stream")
	}
	for s := 0; s < nPatch; s++ {
		f, err := pipeRow(sc, 13)
		if err != nil {
			return nil, fmt.Errorf("pygeo: patch row %d: %w", s, err)
		}
		for k := 0; k < 4; k++ {
			t.NodeLink[s][k] = f[1+k]
			t.EdgeLink[s][k] = f[5+2*k]
			t.EdgeDir[s][k] = f[6+2*k]
		}
		// Cross-check the corner nodes against the edge endpoints.
		for slot := 0; slot < 4; slot++ {
			e := t.Edges[t.EdgeLink[s][slot]]
			c1, c2 := nodesFromEdge(slot)
			n1, n2 := t.NodeLink[s][c1], t.NodeLink[s][c2]
			if t.EdgeDir[s][slot] < 0 {
				n1, n2 = n2, n1
			}
			if n1 != e.N1 || n2 != e.N2 {
				return nil, fmt.Errorf("pygeo: patch %d edge slot %d disagrees with its corner nodes", s, slot)
			}
		}
	}
	return t, nil
}

func pipeRow(sc *bufio.Scanner, want int) ([]int, error) {
	if !sc.Scan() {
		return nil, fmt.Errorf("unexpected end of stream")
	}
	cols := strings.Split(sc.Text(), "|")
	if len(cols) < want {
		return nil, fmt.Errorf("want %d columns, have %d", want, len(cols))
	}
	out := make([]int, want)
	for i := 0; i < want; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(cols[i]))
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// String summarizes the topology in the connectivity table format.
func (t *Topology) String() string {
	var sb strings.Builder
	t.WriteConnectivity(&sb)
	return sb.String()
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
