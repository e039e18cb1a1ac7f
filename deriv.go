package pygeo

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// csStep is the complex-step perturbation size. At 1e-40 the
// imaginary parts carry exact first derivatives to machine precision;
// there is no subtractive cancellation to balance against.
const csStep = 1e-40

// Sizes reports the derivative problem dimensions: the number of
// global scalars (groups with UseIt set), normal scalars, local
// scalars and global control points.
func (m *Model) Sizes() (nGlobal, nNormal, nLocal, nCoef int) {
	for _, gv := range m.globalVars {
		if gv.UseIt {
			nGlobal += gv.NVal()
		}
	}
	for _, nv := range m.normalVars {
		nNormal += nv.NVal()
	}
	for _, lv := range m.localVars {
		nLocal += lv.NVal()
	}
	return nGlobal, nNormal, nLocal, m.NCoef
}

// CalcCoefDeriv computes the Jacobian of the flat control point
// buffer with respect to every design variable scalar, ordered global
// groups first, then normal, then local. Global columns come from a
// complex step through the axis update; each normal column is the
// unit surface normal at its control point and each local column a
// Cartesian unit direction.
//
// The result is retained for PointDeriv.
func (m *Model) CalcCoefDeriv() *mat.Dense {
	nGlobal, nNormal, nLocal, nCoef := m.Sizes()
	d := mat.NewDense(3*nCoef, nGlobal+nNormal+nLocal, nil)

	col := 0
	h := complex(0, csStep)
	for _, gv := range m.globalVars {
		if !gv.UseIt {
			continue
		}
		for j := range gv.Value {
			gv.Value[j] += h
			m.updateCoef(false)
			for gid, c := range m.Coef {
				im := c.Imag()
				d.Set(3*gid, col, im.X/csStep)
				d.Set(3*gid+1, col, im.Y/csStep)
				d.Set(3*gid+2, col, im.Z/csStep)
			}
			gv.Value[j] -= h
			col++
		}
	}
	// Clear the last perturbation's imaginary parts.
	m.updateCoef(false)

	for _, nv := range m.normalVars {
		normals := m.controlNormals(nv.Surf, nv.cells)
		for i, gid := range nv.coefList {
			d.Set(3*gid, col, normals[i].X)
			d.Set(3*gid+1, col, normals[i].Y)
			d.Set(3*gid+2, col, normals[i].Z)
			col++
		}
	}
	for _, lv := range m.localVars {
		for _, gid := range lv.coefList {
			for k := 0; k < 3; k++ {
				d.Set(3*gid+k, col, 1)
				col++
			}
		}
	}
	m.dCoefdx = d
	return d
}

// SurfaceDerivative computes the Jacobian of the surface points at
// the given (patch, u, v) locations with respect to the flat control
// point buffer. The result is retained for PointDeriv.
func (m *Model) SurfaceDerivative(patchID []int, uv [][2]float64) *mat.Dense {
	d := mat.NewDense(3*len(patchID), 3*m.NCoef, nil)
	for row, p := range patchID {
		surf := m.Surfs[p]
		iIdx, jIdx, wu, wv := surf.ActiveControls(uv[row][0], uv[row][1])
		for a, iu := range iIdx {
			for b, jv := range jIdx {
				w := wu[a] * wv[b]
				if w == 0 {
					continue
				}
				gid := m.LIndex[p][iu][jv]
				for k := 0; k < 3; k++ {
					d.Set(3*row+k, 3*gid+k, d.At(3*row+k, 3*gid+k)+w)
				}
			}
		}
	}
	m.dPtdCoef = d
	return d
}

// PointDeriv multiplies the two retained Jacobians into the full
// sensitivity of the surface points with respect to the design
// variables. CalcCoefDeriv and SurfaceDerivative must have run first.
func (m *Model) PointDeriv() (*mat.Dense, error) {
	if m.dCoefdx == nil || m.dPtdCoef == nil {
		return nil, errors.New("pygeo: run CalcCoefDeriv and SurfaceDerivative before PointDeriv")
	}
	var out mat.Dense
	out.Mul(m.dPtdCoef, m.dCoefdx)
	return &out, nil
}

// SurfacePoints evaluates the patches at the given (patch, u, v)
// locations.
func (m *Model) SurfacePoints(patchID []int, uv [][2]float64) []r3.Vec {
	out := make([]r3.Vec, len(patchID))
	for i, p := range patchID {
		out[i] = m.Surfs[p].Point(uv[i][0], uv[i][1])
	}
	return out
}
