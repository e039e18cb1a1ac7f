package pygeo

import (
	"fmt"

	"github.com/marcomangano/pygeo/bspline"
)

// PropagateKnotVectors forces every design group of edges onto a
// single control point count and a single knot vector, so that
// stitched patches share control points one for one along common
// edges. Each patch is resized to the counts its edge groups carry,
// given knots from its own data parameterization, and then every
// group's knot vectors are blended into one and written back. All
// patches are refit to their data afterwards and the global numbering
// is rebuilt.
func (m *Model) PropagateKnotVectors() error {
	nDG := 0
	for _, e := range m.Topo.Edges {
		if e.DG >= nDG {
			nDG = e.DG + 1
		}
	}
	dgNCtl := make([]int, nDG)
	for _, e := range m.Topo.Edges {
		if dgNCtl[e.DG] == 0 {
			dgNCtl[e.DG] = e.NCtl
		}
	}
	for _, e := range m.Topo.Edges {
		e.NCtl = dgNCtl[e.DG]
	}

	for s, surf := range m.Surfs {
		nctlu := dgNCtl[m.Topo.Edges[m.Topo.EdgeLink[s][0]].DG]
		nctlv := dgNCtl[m.Topo.Edges[m.Topo.EdgeLink[s][2]].DG]
		nu, nv := surf.NumData()
		if nctlu > nu || nctlv > nv {
			return fmt.Errorf("pygeo: patch %d has %dx%d data but its edge groups require %dx%d control points", s, nu, nv, nctlu, nctlv)
		}
		surf.SetControlCounts(nctlu, nctlv)
		surf.TU = bspline.Approximating(surf.U, nctlu, surf.KU)
		surf.TV = bspline.Approximating(surf.V, nctlv, surf.KV)
	}

	for dg := 0; dg < nDG; dg++ {
		var members [][]float64
		var where [][2]int // (patch, slot)
		sym := false
		for ie, e := range m.Topo.Edges {
			if e.DG != dg {
				continue
			}
			for _, se := range m.Topo.SurfacesOnEdge(ie) {
				s, slot := se[0], se[1]
				t := m.Surfs[s].TU
				if slot >= 2 {
					t = m.Surfs[s].TV
				}
				kv := append([]float64(nil), t...)
				if m.Topo.EdgeDir[s][slot] < 0 {
					kv = reverseKnots(kv)
					sym = true
				}
				members = append(members, kv)
				where = append(where, [2]int{s, slot})
			}
		}
		if len(members) == 0 {
			continue
		}
		blended := blendKnotVectors(members, sym)
		for _, se := range where {
			s, slot := se[0], se[1]
			if slot < 2 {
				m.Surfs[s].TU = bspline.KnotVec(blended)
			} else {
				m.Surfs[s].TV = bspline.KnotVec(blended)
			}
		}
	}

	for s, surf := range m.Surfs {
		if err := surf.Refit(); err != nil {
			return fmt.Errorf("pygeo: refit patch %d: %w", s, err)
		}
	}
	if err := m.rebuildIndex(); err != nil {
		return err
	}
	m.Update()
	return nil
}

// blendKnotVectors averages a set of equal-length knot vectors on
// [0,1] into one. With sym set, each vector is first symmetrized
// about 1/2 so the result is invariant under edge reversal; this is
// required whenever group members traverse the shared edges in
// opposite directions.
func blendKnotVectors(vectors [][]float64, sym bool) []float64 {
	n := len(vectors[0])
	out := make([]float64, n)
	for _, kv := range vectors {
		if len(kv) != n {
			panic("pygeo: blending knot vectors of unequal length")
		}
		if sym {
			kv = symmetrizeKnots(kv)
		}
		for i, t := range kv {
			out[i] += t
		}
	}
	for i := range out {
		out[i] /= float64(len(vectors))
	}
	return out
}

// reverseKnots maps a knot vector on [0,1] to the one describing the
// same curve traversed backwards.
func reverseKnots(kv []float64) []float64 {
	out := make([]float64, len(kv))
	for i, t := range kv {
		out[len(kv)-1-i] = 1 - t
	}
	return out
}

func symmetrizeKnots(kv []float64) []float64 {
	rev := reverseKnots(kv)
	out := make([]float64, len(kv))
	for i := range kv {
		out[i] = (kv[i] + rev[i]) / 2
	}
	return out
}
