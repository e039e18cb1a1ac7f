package pygeo

import (
	"errors"
	"fmt"
	"math"

	"github.com/marcomangano/pygeo/internal/c3"
	"github.com/marcomangano/pygeo/lsq"
)

// FitOptions configure FitSurfaces.
type FitOptions struct {
	// Iterations is the number of Gauss-Newton passes. Defaults to 6.
	// With no C1 edges the problem is linear and one pass converges.
	Iterations int
	// Tol stops early once the residual norm drops below it. Zero
	// means run all iterations.
	Tol float64
	// DampLimit caps the magnitude a blend parameter may move per
	// iteration; larger steps are halved until they fit. Defaults
	// to 0.1.
	DampLimit float64
	// Solver solves the least-squares systems. Defaults to
	// lsq.CGNR{}, which tolerates the rank-deficient columns corner
	// blends can produce.
	Solver lsq.Solver
}

// dvEntry ties one global control point to fit unknowns. A free point
// owns three consecutive scalar columns starting at col. A blend
// point owns the single column col holding its parameter t and is
// reconstructed as (1-t)*coef[a] + t*coef[b].
type dvEntry struct {
	col   int
	blend bool
	a, b  int
}

// FitSurfaces refits every control point of the model to the original
// patch data in one global least-squares problem that keeps stitched
// edges watertight. Control points on edges flagged C1 are not free:
// each is reduced to a single blend parameter between the two control
// points flanking the edge, which keeps the surfaces tangent-plane
// continuous across it. The residual norm of each iteration is
// returned.
func (m *Model) FitSurfaces(opts *FitOptions) ([]float64, error) {
	iterations := 6
	dampLimit := 0.1
	tol := 0.0
	var solver lsq.Solver = lsq.CGNR{}
	if opts != nil {
		if opts.Iterations > 0 {
			iterations = opts.Iterations
		}
		if opts.DampLimit > 0 {
			dampLimit = opts.DampLimit
		}
		if opts.Tol > 0 {
			tol = opts.Tol
		}
		if opts.Solver != nil {
			solver = opts.Solver
		}
	}

	dvLink, nCols, err := m.buildDVLink()
	if err != nil {
		return nil, err
	}

	// Unique data points, numbered with the same topology so shared
	// boundary samples produce one residual row triple, not several.
	sizes := make([][2]int, len(m.Surfs))
	for i, s := range m.Surfs {
		nu, nv := s.NumData()
		sizes[i] = [2]int{nu, nv}
	}
	nPts, gPts, _, err := m.Topo.GlobalNumbering(sizes, nil)
	if err != nil {
		return nil, err
	}
	nRows := 3 * nPts

	// Current unknowns: free coefs seed their columns, blends start
	// halfway and the constrained coefs snap to the midpoint.
	xCur := make([]float64, nCols)
	for gid, entries := range dvLink {
		e := entries[0]
		if e.blend {
			xCur[e.col] = 0.5
			m.Coef[gid] = c3.Lerp(m.Coef[e.a], m.Coef[e.b], 0.5)
		} else {
			p := m.Coef[gid].Real()
			xCur[e.col], xCur[e.col+1], xCur[e.col+2] = p.X, p.Y, p.Z
		}
	}

	rhs := make([]float64, nRows)
	for ii := 0; ii < nPts; ii++ {
		loc := gPts[ii][0]
		p := m.Surfs[loc.Patch].Data[loc.I][loc.J]
		rhs[3*ii], rhs[3*ii+1], rhs[3*ii+2] = p.X, p.Y, p.Z
	}

	var history []float64
	tmp := make([]float64, nRows)
	for iter := 0; iter < iterations; iter++ {
		jac := m.assembleFitJacobian(nRows, nCols, gPts, dvLink, xCur)
		csr := jac.CSR()
		if iter == 0 {
			// Move the affine part to the left so later passes solve
			// for corrections only.
			csr.MulVec(tmp, xCur)
			for i := range rhs {
				rhs[i] -= tmp[i]
			}
		}
		dx, err := solver.Solve(jac, rhs)
		if err != nil {
			return history, fmt.Errorf("pygeo: fit iteration %d: %w", iter, err)
		}
		csr.MulVec(tmp, dx)
		rms := 0.0
		for i := range rhs {
			rhs[i] -= tmp[i]
			rms += rhs[i] * rhs[i]
		}
		rms = math.Sqrt(rms)
		history = append(history, rms)

		for i := range xCur {
			xCur[i] += dx[i]
		}
		// Free coefs first so blend reconstruction sees fresh anchors.
		for gid, entries := range dvLink {
			if e := entries[0]; !e.blend {
				m.Coef[gid] = c3.Vec{
					X: complex(xCur[e.col], 0),
					Y: complex(xCur[e.col+1], 0),
					Z: complex(xCur[e.col+2], 0),
				}
			}
		}
		for gid, entries := range dvLink {
			e := entries[0]
			if !e.blend {
				continue
			}
			step := dx[e.col]
			damped := step
			for i := 0; i < 25 && math.Abs(damped) > dampLimit; i++ {
				damped /= 2
			}
			xCur[e.col] += damped - step
			m.Coef[gid] = c3.Lerp(m.Coef[e.a], m.Coef[e.b], complex(xCur[e.col], 0))
		}
		if tol > 0 && rms < tol {
			break
		}
	}
	m.coef0 = append(m.coef0[:0], m.Coef...)
	m.scatterCoef()
	return history, nil
}

// buildDVLink classifies every global control point as free or
// blended. Points on C1 edges shared by exactly two patches become
// blends between the off-edge neighbors on either side. A corner
// touching two C1 edges collects a blend per edge but only the first
// governs it.
func (m *Model) buildDVLink() ([][]dvEntry, int, error) {
	dvLink := make([][]dvEntry, m.NCoef)
	counter := 0
	free := func(gid int) {
		dvLink[gid] = []dvEntry{{col: counter}}
		counter += 3
	}
	blendOn := func(ie, index int) (a, b int, ok bool) {
		onEdge := m.Topo.SurfacesOnEdge(ie)
		if len(onEdge) != 2 {
			return 0, 0, false
		}
		_, a = m.twoIndicesOnEdge(onEdge[0][0], onEdge[0][1], index)
		_, b = m.twoIndicesOnEdge(onEdge[1][0], onEdge[1][1], index)
		return a, b, true
	}
	for s := range m.Surfs {
		nctlu, nctlv := m.Surfs[s].NumCtl()
		for i := 0; i < nctlu; i++ {
			for j := 0; j < nctlv; j++ {
				gid := m.LIndex[s][i][j]
				if dvLink[gid] != nil {
					continue
				}
				kind, slot, corner, index := indexPosition(i, j, nctlu, nctlv)
				switch kind {
				case gridInterior:
					free(gid)
				case gridEdge:
					ie := m.Topo.EdgeLink[s][slot]
					if m.Topo.Edges[ie].Cont == C1 {
						// Convert to the canonical edge frame before
						// looking up either side.
						canon := index
						if m.Topo.EdgeDir[s][slot] < 0 {
							n := nctlu
							if slot >= 2 {
								n = nctlv
							}
							canon = n - index - 1
						}
						if a, b, ok := blendOn(ie, canon); ok {
							dvLink[gid] = []dvEntry{{col: counter, blend: true, a: a, b: b}}
							counter++
							continue
						}
					}
					free(gid)
				default:
					e1, e2, idx1, idx2 := edgesFromCorner(corner, nctlu, nctlv)
					slots := [2]int{e1, e2}
					idxs := [2]int{idx1, idx2}
					for k := 0; k < 2; k++ {
						ie := m.Topo.EdgeLink[s][slots[k]]
						if m.Topo.Edges[ie].Cont != C1 {
							continue
						}
						canon := idxs[k]
						if m.Topo.EdgeDir[s][slots[k]] < 0 {
							n := nctlu
							if slots[k] >= 2 {
								n = nctlv
							}
							canon = n - canon - 1
						}
						if a, b, ok := blendOn(ie, canon); ok {
							dvLink[gid] = append(dvLink[gid], dvEntry{col: counter, blend: true, a: a, b: b})
							counter++
						}
					}
					if dvLink[gid] == nil {
						free(gid)
					}
				}
			}
		}
	}
	for gid, entries := range dvLink {
		if entries == nil {
			return nil, 0, fmt.Errorf("pygeo: control point %d reached by no patch", gid)
		}
	}
	for _, entries := range dvLink {
		// A blend anchored on another blend cannot be expressed with
		// scalar columns; it would need C1 edges one row apart.
		e := entries[0]
		if e.blend && (dvLink[e.a][0].blend || dvLink[e.b][0].blend) {
			return nil, 0, errors.New("pygeo: C1 edges too close: blend anchored on a blended control point")
		}
	}
	return dvLink, counter, nil
}

// twoIndicesOnEdge returns the global ids of the control point at
// canonical position index along the patch edge slot and of its
// immediate off-edge neighbor inside the patch.
func (m *Model) twoIndicesOnEdge(s, slot, index int) (onEdge, neighbor int) {
	li := m.LIndex[s]
	n, mm := len(li), len(li[0])
	if m.Topo.EdgeDir[s][slot] < 0 {
		if slot < 2 {
			index = n - index - 1
		} else {
			index = mm - index - 1
		}
	}
	switch slot {
	case 0:
		return li[index][0], li[index][1]
	case 1:
		return li[index][mm-1], li[index][mm-2]
	case 2:
		return li[0][index], li[1][index]
	default:
		return li[n-1][index], li[n-2][index]
	}
}

// assembleFitJacobian builds the sparse Jacobian of all residual rows
// with respect to the fit unknowns at the current state.
func (m *Model) assembleFitJacobian(nRows, nCols int, gPts [][]Location, dvLink [][]dvEntry, xCur []float64) *lsq.Triplet {
	jac := lsq.NewTriplet(nRows, nCols)
	for ii := range gPts {
		loc := gPts[ii][0]
		surf := m.Surfs[loc.Patch]
		u, v := surf.U[loc.I], surf.V[loc.J]
		iIdx, jIdx, wu, wv := surf.ActiveControls(u, v)
		for a, iu := range iIdx {
			for b, jv := range jIdx {
				x := wu[a] * wv[b]
				if x == 0 {
					continue
				}
				gid := m.LIndex[loc.Patch][iu][jv]
				e := dvLink[gid][0]
				if !e.blend {
					jac.Add(3*ii, e.col, x)
					jac.Add(3*ii+1, e.col+1, x)
					jac.Add(3*ii+2, e.col+2, x)
					continue
				}
				t := xCur[e.col]
				d := c3.Sub(m.Coef[e.b], m.Coef[e.a]).Real()
				jac.Add(3*ii, e.col, x*d.X)
				jac.Add(3*ii+1, e.col, x*d.Y)
				jac.Add(3*ii+2, e.col, x*d.Z)
				if ea := dvLink[e.a][0]; !ea.blend {
					jac.Add(3*ii, ea.col, (1-t)*x)
					jac.Add(3*ii+1, ea.col+1, (1-t)*x)
					jac.Add(3*ii+2, ea.col+2, (1-t)*x)
				}
				if eb := dvLink[e.b][0]; !eb.blend {
					jac.Add(3*ii, eb.col, t*x)
					jac.Add(3*ii+1, eb.col+1, t*x)
					jac.Add(3*ii+2, eb.col+2, t*x)
				}
			}
		}
	}
	return jac
}
